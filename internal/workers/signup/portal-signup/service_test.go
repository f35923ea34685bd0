package portalsignup

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"league-signup/internal/common/browser"
	stderrors "league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
	"league-signup/internal/models"
	"league-signup/pkg/registry"
)

// fakeSession renders a page as a set of visible selectors and records every action.
type fakeSession struct {
	mu      sync.Mutex
	visible map[string]bool
	texts   map[string]string
	// reveal makes selectors visible once the keyed selector is clicked.
	reveal  map[string][]string
	actions []string
	filled  map[string]string
	closed  int
	panicOn string
}

func newFakeSession(visible ...string) *fakeSession {
	s := &fakeSession{
		visible: map[string]bool{},
		texts:   map[string]string{},
		reveal:  map[string][]string{},
		filled:  map[string]string{},
	}
	for _, sel := range visible {
		s.visible[sel] = true
	}
	return s
}

func (s *fakeSession) record(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.record("navigate " + url)
	return nil
}

func (s *fakeSession) WaitVisible(ctx context.Context, selector string) error {
	s.mu.Lock()
	ok := s.visible[selector]
	s.mu.Unlock()
	if ok {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeSession) Fill(_ context.Context, selector, value string) error {
	s.record("fill " + selector)
	s.mu.Lock()
	s.filled[selector] = value
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Click(_ context.Context, selector string) error {
	if selector == s.panicOn {
		panic("target closed")
	}
	s.record("click " + selector)
	s.mu.Lock()
	for _, sel := range s.reveal[selector] {
		s.visible[sel] = true
	}
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Text(_ context.Context, selector string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.texts[selector], nil
}

func (s *fakeSession) Upload(_ context.Context, selector, _ string) error {
	s.record("upload " + selector)
	return nil
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type fakeEngine struct {
	session *fakeSession
	err     error
}

func (e *fakeEngine) NewSession(context.Context) (browser.Session, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.session, nil
}

func (e *fakeEngine) Close() error { return nil }

type MockInbox struct {
	mock.Mock
}

func (m *MockInbox) FetchOTP(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

// testRegistry uses a single selector per element to keep page scripting short,
// except the email field which exercises a fallback.
func testRegistry() *registry.SelectorRegistry {
	return &registry.SelectorRegistry{Elements: []registry.Element{
		{Name: "parent.role", Selectors: []string{"#role-parent"}},
		{Name: "adult.role", Selectors: []string{"#role-adult"}},
		{Name: "common.firstName", Selectors: []string{"#first"}},
		{Name: "common.lastName", Selectors: []string{"#last"}},
		{Name: "common.email", Selectors: []string{"#email-new", "#email"}},
		{Name: "common.phone", Selectors: []string{"#phone"}},
		{Name: "common.dateOfBirth", Selectors: []string{"#dob"}},
		{Name: "common.submit", Selectors: []string{"#submit"}},
		{Name: "common.otp", Selectors: []string{"#otp"}},
		{Name: "common.otpSubmit", Selectors: []string{"#verify"}},
		{Name: "common.password", Selectors: []string{"#pw"}},
		{Name: "common.passwordConfirm", Selectors: []string{"#pw2"}},
		{Name: "common.passwordSubmit", Selectors: []string{"#create"}},
		{Name: "common.landing", Selectors: []string{"#dashboard"}},
		{Name: "common.formError", Selectors: []string{".alert"}},
	}}
}

// happyPage scripts a portal where each submit reveals the next step.
func happyPage() *fakeSession {
	s := newFakeSession("#role-parent", "#role-adult", "#first", "#last", "#email", "#phone", "#dob", "#submit")
	s.reveal["#submit"] = []string{"#otp", "#verify"}
	s.reveal["#verify"] = []string{"#pw", "#pw2", "#create"}
	s.reveal["#create"] = []string{"#dashboard"}
	return s
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://league.example.com/"
	cfg.Password = "S3cret!pass"
	cfg.ProbeTimeout = 10 * time.Millisecond
	return cfg
}

var record = models.SignupRecord{
	FirstName:   "Ava",
	LastName:    "Stone",
	Email:       "ava@example.com",
	Phone:       "555-0100",
	DateOfBirth: "05/01/2014",
}

func newTestService(t *testing.T, cfg *Config, sess *fakeSession, inbox *MockInbox) *Service {
	t.Helper()
	svc, err := NewService(ServiceDependencies{
		Logger:    logger.NewTestLogger(t),
		Engine:    &fakeEngine{session: sess},
		Inbox:     inbox,
		Selectors: testRegistry(),
	}, cfg)
	require.NoError(t, err)
	return svc
}

func TestExecute_CompletesSignup(t *testing.T) {
	sess := happyPage()
	inbox := new(MockInbox)
	inbox.On("FetchOTP", mock.Anything, "ava@example.com").Return("482913", nil).Once()
	svc := newTestService(t, testConfig(), sess, inbox)

	require.NoError(t, svc.Execute(context.Background(), record))

	assert.Equal(t, "navigate https://league.example.com/signup?role=parent", sess.actions[0])
	assert.Equal(t, "click #role-parent", sess.actions[1])
	assert.Equal(t, "ava@example.com", sess.filled["#email"], "falls back to the second email selector")
	assert.Equal(t, "05/01/2014", sess.filled["#dob"])
	assert.Equal(t, "482913", sess.filled["#otp"])
	assert.Equal(t, "S3cret!pass", sess.filled["#pw"])
	assert.Equal(t, "S3cret!pass", sess.filled["#pw2"])
	assert.Equal(t, "click #create", sess.actions[len(sess.actions)-1])
	assert.Equal(t, 1, sess.closed)
	inbox.AssertExpectations(t)
}

func TestExecute_AdultFlowUsesAdultRole(t *testing.T) {
	sess := happyPage()
	inbox := new(MockInbox)
	inbox.On("FetchOTP", mock.Anything, mock.Anything).Return("111222", nil)
	cfg := testConfig()
	cfg.Flow = FlowAdult
	svc := newTestService(t, cfg, sess, inbox)

	require.NoError(t, svc.Execute(context.Background(), record))
	assert.Equal(t, "click #role-adult", sess.actions[1])
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name     string
		page     func() *fakeSession
		otpErr   error
		wantCode stderrors.ErrorCode
	}{
		{
			name: "form field missing",
			page: func() *fakeSession {
				s := happyPage()
				delete(s.visible, "#phone")
				return s
			},
			wantCode: stderrors.ErrCodeElementNotFound,
		},
		{
			name:     "no verification code",
			page:     happyPage,
			otpErr:   stderrors.NewOTPNotFoundError("ava@example.com", time.Second),
			wantCode: stderrors.ErrCodeOTPNotFound,
		},
		{
			name: "portal rejects the form",
			page: func() *fakeSession {
				s := happyPage()
				s.reveal["#submit"] = []string{".alert"}
				s.texts[".alert"] = " Email already registered "
				return s
			},
			wantCode: stderrors.ErrCodeUnexpectedPageState,
		},
		{
			name: "landing never shows",
			page: func() *fakeSession {
				s := happyPage()
				s.reveal["#create"] = nil
				return s
			},
			wantCode: stderrors.ErrCodeElementNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := tt.page()
			inbox := new(MockInbox)
			if tt.otpErr != nil {
				inbox.On("FetchOTP", mock.Anything, mock.Anything).Return("", tt.otpErr)
			} else {
				inbox.On("FetchOTP", mock.Anything, mock.Anything).Return("482913", nil)
			}
			svc := newTestService(t, testConfig(), sess, inbox)

			err := svc.Execute(context.Background(), record)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, stderrors.CodeOf(err))
			assert.Equal(t, 1, sess.closed, "session must be closed on failure")
		})
	}
}

func TestExecute_RejectedFormReportsBannerText(t *testing.T) {
	sess := happyPage()
	sess.reveal["#submit"] = []string{".alert"}
	sess.texts[".alert"] = "Email already registered"
	svc := newTestService(t, testConfig(), sess, new(MockInbox))

	err := svc.Execute(context.Background(), record)
	assert.Contains(t, err.Error(), "Email already registered")
}

func TestExecute_ClosesSessionOnPanic(t *testing.T) {
	sess := happyPage()
	sess.panicOn = "#submit"
	svc := newTestService(t, testConfig(), sess, new(MockInbox))

	assert.Panics(t, func() { _ = svc.Execute(context.Background(), record) })
	assert.Equal(t, 1, sess.closed)
}

func TestExecute_SessionStartFailure(t *testing.T) {
	svc, err := NewService(ServiceDependencies{
		Engine: &fakeEngine{err: errors.New("chrome not found")},
		Inbox:  new(MockInbox),
	}, testConfig())
	require.NoError(t, err)

	err = svc.Execute(context.Background(), record)
	assert.Equal(t, stderrors.ErrCodeBrowserSessionFailed, stderrors.CodeOf(err))
}

func TestExecute_StopsWhenContextCancelled(t *testing.T) {
	sess := happyPage()
	sess.reveal["#submit"] = nil
	cfg := testConfig()
	cfg.ProbeTimeout = time.Hour
	svc := newTestService(t, cfg, sess, new(MockInbox))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := svc.Execute(ctx, record)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, sess.closed)
}

func TestExecute_SavesScreenshotOnFailure(t *testing.T) {
	sess := happyPage()
	delete(sess.visible, "#first")
	cfg := testConfig()
	cfg.ScreenshotDir = t.TempDir()
	svc := newTestService(t, cfg, sess, new(MockInbox))

	require.Error(t, svc.Execute(context.Background(), record))

	entries, err := os.ReadDir(cfg.ScreenshotDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^ava_example\.com-\d+\.png$`, entries[0].Name())
}

func TestNewService_Validation(t *testing.T) {
	deps := ServiceDependencies{Engine: &fakeEngine{}, Inbox: new(MockInbox)}

	cfg := testConfig()
	cfg.Password = ""
	_, err := NewService(deps, cfg)
	assert.ErrorContains(t, err, "portal.password")

	cfg = testConfig()
	cfg.Flow = "coach"
	_, err = NewService(deps, cfg)
	assert.ErrorContains(t, err, "portal.flow")

	deps.Selectors = &registry.SelectorRegistry{Elements: []registry.Element{
		{Name: "common.email", Selectors: []string{"#email"}},
	}}
	_, err = NewService(deps, testConfig())
	assert.ErrorContains(t, err, "selector registry")

	_, err = NewService(ServiceDependencies{Engine: &fakeEngine{}}, testConfig())
	assert.Error(t, err)
}

package e2e

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePortal serves a one-page signup flow plus a Mailpit-compatible inbox
// holding the codes it sends.
type fakePortal struct {
	mu       sync.Mutex
	codes    map[string]string
	accounts map[string]bool
	next     int
	srv      *httptest.Server
}

func startFakePortal(t *testing.T) (*fakePortal, string) {
	t.Helper()
	p := &fakePortal{codes: map[string]string{}, accounts: map[string]bool{}, next: 481516}

	mux := http.NewServeMux()
	mux.HandleFunc("/signup", p.page)
	mux.HandleFunc("/api/register", p.register)
	mux.HandleFunc("/api/verify", p.verify)
	mux.HandleFunc("/api/v1/search", p.search)
	mux.HandleFunc("/api/v1/message/", p.message)

	l, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p.srv = httptest.NewUnstartedServer(mux)
	p.srv.Listener = l
	p.srv.Start()
	t.Cleanup(p.srv.Close)

	_, port, _ := net.SplitHostPort(l.Addr().String())
	return p, fmt.Sprintf("http://%s:%s", *portalHost, port)
}

func (p *fakePortal) Accounts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for email := range p.accounts {
		out = append(out, email)
	}
	return out
}

type credentials struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (p *fakePortal) register(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.HasPrefix(c.Email, "taken") {
		http.Error(w, "An account with this email already exists", http.StatusConflict)
		return
	}
	p.mu.Lock()
	p.codes[c.Email] = fmt.Sprint(p.next)
	p.next++
	p.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (p *fakePortal) verify(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.codes[c.Email] != c.Code {
		http.Error(w, "That code is not valid", http.StatusUnauthorized)
		return
	}
	p.accounts[c.Email] = true
	w.WriteHeader(http.StatusNoContent)
}

func (p *fakePortal) search(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimPrefix(r.URL.Query().Get("query"), "to:")
	p.mu.Lock()
	_, ok := p.codes[email]
	p.mu.Unlock()

	messages := []map[string]interface{}{}
	if ok {
		messages = append(messages, map[string]interface{}{
			"ID":      email,
			"Subject": "Verify your email",
			"Created": time.Now().UTC(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"messages": messages})
}

func (p *fakePortal) message(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimPrefix(r.URL.Path, "/api/v1/message/")
	p.mu.Lock()
	code, ok := p.codes[email]
	p.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"Subject": "Verify your email",
		"Text":    "Your verification code is " + code + ". It expires in 10 minutes.",
	})
}

func (p *fakePortal) page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, signupPage)
}

const signupPage = `<!doctype html>
<html>
<body>
<div class="alert-danger" id="banner" style="display:none"></div>

<section id="roles">
  <button data-testid="role-parent" onclick="show('form')">I'm a Parent</button>
  <button data-testid="role-adult" onclick="show('form')">Adult Player</button>
</section>

<section id="form" style="display:none">
  <input name="firstName" placeholder="First Name">
  <input name="lastName" placeholder="Last Name">
  <input type="email" id="email-field" placeholder="Email">
  <input name="phone" placeholder="Phone">
  <input id="dob" placeholder="MM/DD/YYYY">
  <button type="submit" onclick="register()">Continue</button>
</section>

<section id="otp" style="display:none">
  <input name="otp" placeholder="Enter code">
  <button data-testid="verify-otp" onclick="verify()">Verify</button>
</section>

<section id="password" style="display:none">
  <input name="password" type="password">
  <input name="confirmPassword" type="password">
  <button data-testid="create-password" onclick="show('dashboard')">Create Account</button>
</section>

<section id="dashboard" style="display:none">
  <h1 data-testid="dashboard">Welcome to the league</h1>
</section>

<script>
function show(id) {
  document.querySelectorAll('section').forEach(s => s.style.display = 'none');
  document.getElementById(id).style.display = 'block';
}
function fail(text) {
  const b = document.getElementById('banner');
  b.textContent = text;
  b.style.display = 'block';
}
function email() { return document.getElementById('email-field').value; }
async function post(path, body) {
  const res = await fetch(path, {method: 'POST', body: JSON.stringify(body)});
  return res.ok ? '' : (await res.text()).trim();
}
async function register() {
  const err = await post('/api/register', {email: email()});
  if (err) { fail(err); return; }
  show('otp');
}
async function verify() {
  const code = document.querySelector("input[name='otp']").value;
  const err = await post('/api/verify', {email: email(), code: code});
  if (err) { fail(err); return; }
  show('password');
}
</script>
</body>
</html>`

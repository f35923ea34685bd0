package resultlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"league-signup/internal/models"
)

// ElasticsearchSink indexes outcomes so runs can be searched across days.
// Documents are keyed by email, so a replayed append overwrites instead of duplicating.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
	runID  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index, runID string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index, runID: runID}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

var outcomeMapping = `{
  "mappings": {
    "properties": {
      "email":          {"type": "keyword"},
      "timestamp":      {"type": "date"},
      "sourceIndex":    {"type": "integer"},
      "workerIdentity": {"type": "keyword"},
      "runId":          {"type": "keyword"}
    }
  }
}`

func (s *ElasticsearchSink) EnsureHeader(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index %s: %s", s.index, res.Status())
	}

	res, err = s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader([]byte(outcomeMapping))),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	if alreadyExists(body) {
		// a concurrent creator won the race
		return nil
	}
	return fmt.Errorf("create index %s: %s: %s", s.index, res.Status(), body)
}

func alreadyExists(body []byte) bool {
	var reply struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return false
	}
	return reply.Error.Type == "resource_already_exists_exception"
}

type outcomeDoc struct {
	Email          string    `json:"email"`
	Timestamp      time.Time `json:"timestamp"`
	SourceIndex    int       `json:"sourceIndex"`
	WorkerIdentity string    `json:"workerIdentity"`
	RunID          string    `json:"runId"`
}

func (s *ElasticsearchSink) AppendOutcome(ctx context.Context, o models.SignupOutcome) error {
	body, err := json.Marshal(outcomeDoc{
		Email:          o.Email,
		Timestamp:      o.Timestamp.UTC(),
		SourceIndex:    o.SourceIndex,
		WorkerIdentity: o.WorkerIdentity,
		RunID:          s.runID,
	})
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	res, err := s.client.Index(s.index, bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(o.Email),
		s.client.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("index outcome for %s: %w", o.Email, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index outcome for %s: %s", o.Email, res.Status())
	}
	return nil
}

func (s *ElasticsearchSink) Close() error { return nil }

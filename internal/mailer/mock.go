package mailer

import (
	"context"
	"fmt"
	"sync"
)

// SentEmail records one delivery made through the mock
type SentEmail struct {
	To        string
	FromAlias string
	Subject   string
	HTML      string
}

// Mock is an in-memory EmailSender for tests. Set Err to make every send
// fail with that error.
type Mock struct {
	mu    sync.Mutex
	Sent  []SentEmail
	Err   error
	calls int
}

func (m *Mock) SendEmail(_ context.Context, to, fromAlias, subject, html string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.Err != nil {
		return Result{}, m.Err
	}

	m.Sent = append(m.Sent, SentEmail{To: to, FromAlias: fromAlias, Subject: subject, HTML: html})
	id := fmt.Sprintf("mock-%d", m.calls)
	return Result{MessageID: id, Permalink: "https://mail.example.com/" + id}, nil
}

// Calls returns the number of SendEmail invocations, including failures
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package chttp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
)

// DefaultMaxRetries is the number of times a single exchange may be
// re-issued at the request of a response interceptor.
const DefaultMaxRetries = 10

const readChunkSize = 32 * 1024

// ErrCanceled is delivered to [Delegate.Completed] when a task is canceled
// before it completes.
var ErrCanceled = errors.New("chttp: task canceled")

// Delegate receives the events of a [Task]. Methods are called from the
// transport goroutine in order: ReceivedResponse at most once, then
// ReceivedData zero or more times, then Completed exactly once.
type Delegate interface {
	ReceivedResponse(task *Task, res *http.Response)
	ReceivedData(task *Task, data []byte)
	Completed(task *Task, err error)
}

// TaskState reports the state of the transport task currently backing a
// [Task].
type TaskState int

// Task states.
const (
	TaskSuspended TaskState = iota
	TaskRunning
	TaskCanceling
	TaskCompleted
)

func (s TaskState) String() string {
	switch s {
	case TaskSuspended:
		return "suspended"
	case TaskRunning:
		return "running"
	case TaskCanceling:
		return "canceling"
	case TaskCompleted:
		return "completed"
	}
	return "unknown"
}

type taskPhase int

const (
	phaseCreated taskPhase = iota
	phaseRequestSent
	phaseResponseReceived
	phaseRetrying
	phaseCompleted
	phaseCancelled
)

// Session executes HTTP exchanges through an [InterceptorChain], re-issuing
// a request whenever the response phase sets ShouldRetry, until the retry
// budget of the exchange is spent.
type Session struct {
	client     *http.Client
	chain      InterceptorChain
	userAgent  string
	maxRetries int

	mu    sync.Mutex
	tasks map[*transportTask]*Task
}

// NewSession returns a session which sends requests with client. Every
// outgoing request carries the userAgent value.
func NewSession(client *http.Client, userAgent string, interceptors ...Interceptor) *Session {
	if client == nil {
		client = &http.Client{}
	}
	return &Session{
		client:     client,
		chain:      InterceptorChain(interceptors),
		userAgent:  userAgent,
		maxRetries: DefaultMaxRetries,
		tasks:      make(map[*transportTask]*Task),
	}
}

// SetMaxRetries changes the retry budget of tasks submitted afterwards.
func (s *Session) SetMaxRetries(n int) {
	s.mu.Lock()
	s.maxRetries = n
	s.mu.Unlock()
}

// Task is a logical HTTP exchange. Its identity and retry budget survive
// the replacement of the underlying transport task on retry.
type Task struct {
	session  *Session
	original *http.Request
	body     []byte
	delegate Delegate

	// guarded by session.mu
	current   *transportTask
	remaining int
	attempt   int
	phase     taskPhase
	canceled  bool
}

type transportTask struct {
	req    *http.Request
	cancel context.CancelFunc

	mu      sync.Mutex
	state   TaskState
	started bool
}

// Submit registers a new task for req. The request phase of the chain has
// run by the time Submit returns. The task is suspended; call
// [Task.Resume] to send it.
func (s *Session) Submit(req *http.Request, delegate Delegate) (*Task, error) {
	if req == nil {
		return nil, errors.New("chttp: nil request")
	}
	body, err := readBody(req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	remaining := s.maxRetries
	s.mu.Unlock()
	task := &Task{
		session:   s,
		original:  req,
		body:      body,
		delegate:  delegate,
		remaining: remaining,
	}
	tt := s.prepare(task, 0)
	s.mu.Lock()
	task.current = tt
	s.tasks[tt] = task
	s.mu.Unlock()
	return task, nil
}

func readBody(req *http.Request) ([]byte, error) {
	var rc io.ReadCloser
	switch {
	case req.GetBody != nil:
		var err error
		if rc, err = req.GetBody(); err != nil {
			return nil, err
		}
		if req.Body != nil && req.Body != http.NoBody {
			_ = req.Body.Close()
		}
	case req.Body != nil && req.Body != http.NoBody:
		rc = req.Body
	default:
		return nil, nil
	}
	defer rc.Close() // nolint: errcheck
	return io.ReadAll(rc)
}

// clone returns a copy of the task's original request with a fresh body.
func (t *Task) clone(ctx context.Context) *http.Request {
	req := t.original.Clone(ctx)
	if t.body == nil {
		req.Body = nil
		req.GetBody = nil
		return req
	}
	body := t.body
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.ContentLength = int64(len(body))
	return req
}

// prepare runs the request phase for the given attempt and returns a
// suspended transport task for the result.
func (s *Session) prepare(task *Task, attempt int) *transportTask {
	ctx, cancel := context.WithCancel(task.original.Context())
	req := task.clone(ctx)
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	ictx := s.chain.ApplyRequest(InterceptorContext{
		Request: req,
		Attempt: attempt,
	})
	req = ictx.Request
	trace := ContextClientTrace(ctx)
	trace.httpRequest(req)
	trace.httpRequestBody(req)
	return &transportTask{
		req:    req,
		cancel: cancel,
		state:  TaskSuspended,
	}
}

// Resume starts the task if it is suspended.
func (t *Task) Resume() {
	t.session.mu.Lock()
	tt := t.current
	if t.phase == phaseCreated {
		t.phase = phaseRequestSent
	}
	t.session.mu.Unlock()
	t.session.resume(tt)
}

// Cancel cancels the task. A retry decided after cancellation is not
// started. The delegate still receives Completed.
func (t *Task) Cancel() {
	t.session.mu.Lock()
	if t.phase == phaseCompleted {
		t.session.mu.Unlock()
		return
	}
	t.canceled = true
	t.phase = phaseCancelled
	tt := t.current
	t.session.mu.Unlock()

	tt.mu.Lock()
	started := tt.started
	if tt.state != TaskCompleted {
		tt.state = TaskCanceling
	}
	tt.mu.Unlock()
	tt.cancel()
	if !started {
		// Run it so the delegate observes completion.
		t.session.resume(tt)
	}
}

// State returns the state of the current transport task.
func (t *Task) State() TaskState {
	t.session.mu.Lock()
	tt := t.current
	t.session.mu.Unlock()
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.state
}

// RemainingRetries returns how many more times the task may be re-issued.
func (t *Task) RemainingRetries() int {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	return t.remaining
}

// Request returns the request as submitted, before interception.
func (t *Task) Request() *http.Request {
	return t.original
}

func (s *Session) resume(tt *transportTask) {
	tt.mu.Lock()
	if tt.started {
		tt.mu.Unlock()
		return
	}
	tt.started = true
	if tt.state == TaskSuspended {
		tt.state = TaskRunning
	}
	tt.mu.Unlock()
	go s.run(tt)
}

func (s *Session) lookup(tt *transportTask) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[tt]
}

func (s *Session) run(tt *transportTask) {
	defer tt.cancel()
	res, err := s.client.Do(tt.req)
	if err != nil {
		s.didComplete(tt, err)
		return
	}
	received := res
	res, retried := s.didReceiveResponse(tt, res)
	if retried {
		return
	}
	var readErr error
	if res.Body != nil {
		buf := make([]byte, readChunkSize)
		for {
			n, err := res.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.didReceiveData(tt, chunk)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				readErr = err
				break
			}
		}
		_ = res.Body.Close()
	}
	if res != received {
		// A replacement may stream from the received body, so it is
		// released only once the replacement has been read.
		CloseBody(received.Body)
	}
	s.didComplete(tt, readErr)
}

// didReceiveResponse runs the response phase. It returns true if the
// exchange was handed over to a replacement transport task, in which case
// res has been discarded.
func (s *Session) didReceiveResponse(tt *transportTask, res *http.Response) (*http.Response, bool) {
	task := s.lookup(tt)
	if task == nil {
		CloseBody(res.Body)
		return res, true
	}
	ctx := tt.req.Context()
	trace := ContextClientTrace(ctx)
	trace.httpResponse(res)
	trace.httpResponseBody(res)

	s.mu.Lock()
	attempt := task.attempt
	task.phase = phaseResponseReceived
	s.mu.Unlock()

	ictx := s.chain.ApplyResponse(InterceptorContext{
		Request:  task.clone(ctx),
		Response: res,
		Attempt:  attempt,
	})
	received := res
	if ictx.Response != nil {
		res = ictx.Response
	}
	if ictx.ShouldRetry && s.retry(task, tt) {
		trace.httpRetry(attempt+1, res)
		CloseBody(res.Body)
		if res != received {
			CloseBody(received.Body)
		}
		return res, true
	}
	task.delegate.ReceivedResponse(task, res)
	return res, false
}

// retry replaces tt with a freshly intercepted transport task and resumes
// it. It returns false if the budget is spent or the task was canceled.
func (s *Session) retry(task *Task, tt *transportTask) bool {
	s.mu.Lock()
	if task.remaining <= 0 || task.canceled || task.current != tt {
		s.mu.Unlock()
		return false
	}
	task.remaining--
	task.attempt++
	task.phase = phaseRetrying
	attempt := task.attempt
	s.mu.Unlock()

	// The request phase may itself perform HTTP exchanges, so it runs
	// without the lock held.
	next := s.prepare(task, attempt)

	s.mu.Lock()
	if task.canceled {
		s.mu.Unlock()
		next.cancel()
		return false
	}
	delete(s.tasks, tt)
	s.tasks[next] = task
	task.current = next
	task.phase = phaseRequestSent
	s.mu.Unlock()

	tt.mu.Lock()
	tt.state = TaskCompleted
	tt.mu.Unlock()
	s.resume(next)
	return true
}

func (s *Session) didReceiveData(tt *transportTask, data []byte) {
	task := s.lookup(tt)
	if task == nil {
		return
	}
	task.delegate.ReceivedData(task, data)
}

func (s *Session) didComplete(tt *transportTask, err error) {
	tt.mu.Lock()
	tt.state = TaskCompleted
	tt.mu.Unlock()

	s.mu.Lock()
	task, ok := s.tasks[tt]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, tt)
	canceled := task.canceled
	task.phase = phaseCompleted
	s.mu.Unlock()

	if err != nil {
		if canceled {
			err = ErrCanceled
		} else {
			err = netError(err)
		}
	}
	task.delegate.Completed(task, err)
}

// inFlight returns the number of registered tasks.
func (s *Session) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

package persistence

import (
	"database/sql"
	"sync"

	"devteam/pkg/logx"
)

// Request is a fire-and-forget write handed to the Worker.
type Request struct {
	Data      any    `json:"data"`      // Operation-specific payload
	Operation string `json:"operation"` // One of the Op* constants
}

// Write operations.
const (
	OpInsertChatMessage = "insert_chat_message"
	OpUpsertWorkItem    = "upsert_work_item"
	OpUpsertReview      = "upsert_review"
	OpInsertVerdict     = "insert_verdict"
	OpUpsertTaskStatus  = "upsert_task_status"
)

// DefaultQueueSize is the buffer of the worker's request channel.
const DefaultQueueSize = 100

// Worker owns the database handle and applies writes from its channel in order.
// Reads go straight through Ops.
type Worker struct {
	db     *sql.DB
	ops    *DatabaseOperations
	ch     chan *Request
	done   chan struct{}
	logger *logx.Logger
	once   sync.Once
}

// Open initializes the database at dbPath, records the session and starts the worker.
func Open(dbPath, sessionID, configJSON string) (*Worker, error) {
	db, err := InitializeDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	ops := NewDatabaseOperations(db, sessionID)
	if err := ops.CreateSession(&Session{ID: sessionID, ConfigJSON: configJSON}); err != nil {
		_ = db.Close()
		return nil, err
	}

	w := &Worker{
		db:     db,
		ops:    ops,
		ch:     make(chan *Request, DefaultQueueSize),
		done:   make(chan struct{}),
		logger: logx.NewLogger("persistence"),
	}
	go w.run()
	w.logger.Info("Database initialized: %s (session: %s)", dbPath, sessionID)
	return w, nil
}

// Channel returns the send side of the request queue.
func (w *Worker) Channel() chan<- *Request {
	return w.ch
}

// Ops returns the session-scoped operations for reads.
func (w *Worker) Ops() *DatabaseOperations {
	return w.ops
}

// Close drains pending writes and closes the database.
func (w *Worker) Close() error {
	var err error
	w.once.Do(func() {
		close(w.ch)
		<-w.done
		err = w.db.Close()
	})
	return err
}

func (w *Worker) run() {
	defer close(w.done)
	for req := range w.ch {
		if req != nil {
			w.process(req)
		}
	}
	w.logger.Debug("Persistence worker finished draining queue")
}

func (w *Worker) process(req *Request) {
	var err error
	switch req.Operation {
	case OpInsertChatMessage:
		if msg, ok := req.Data.(*ChatMessage); ok {
			err = w.ops.InsertChatMessage(msg)
		}
	case OpUpsertWorkItem:
		if rec, ok := req.Data.(*WorkRecord); ok {
			err = w.ops.UpsertWorkItem(rec)
		}
	case OpUpsertReview:
		if rec, ok := req.Data.(*ReviewRecord); ok {
			err = w.ops.UpsertReview(rec)
		}
	case OpInsertVerdict:
		if rec, ok := req.Data.(*VerdictRecord); ok {
			_, err = w.ops.InsertVerdict(rec)
		}
	case OpUpsertTaskStatus:
		if rec, ok := req.Data.(*TaskRecord); ok {
			err = w.ops.UpsertTaskStatus(rec)
		}
	default:
		w.logger.Warn("Unknown persistence operation: %s", req.Operation)
		return
	}
	if err != nil {
		w.logger.Error("Persistence %s failed: %v", req.Operation, err)
	}
}

func send(ch chan<- *Request, op string, data any) {
	if ch == nil {
		return
	}
	ch <- &Request{Operation: op, Data: data}
}

// PersistChatMessage queues a chat message write.
func PersistChatMessage(msg *ChatMessage, ch chan<- *Request) {
	if msg != nil {
		send(ch, OpInsertChatMessage, msg)
	}
}

// PersistWorkItem queues a work snapshot write.
func PersistWorkItem(rec *WorkRecord, ch chan<- *Request) {
	if rec != nil && rec.AgentID != "" {
		send(ch, OpUpsertWorkItem, rec)
	}
}

// PersistReview queues a review snapshot write.
func PersistReview(rec *ReviewRecord, ch chan<- *Request) {
	if rec != nil {
		send(ch, OpUpsertReview, rec)
	}
}

// PersistVerdict queues a verdict write.
func PersistVerdict(rec *VerdictRecord, ch chan<- *Request) {
	if rec != nil {
		send(ch, OpInsertVerdict, rec)
	}
}

// PersistTaskStatus queues a task status write.
func PersistTaskStatus(rec *TaskRecord, ch chan<- *Request) {
	if rec != nil && rec.TaskID != "" {
		send(ch, OpUpsertTaskStatus, rec)
	}
}

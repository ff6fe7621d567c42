package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// DatabaseOperations runs queries scoped to one session.
type DatabaseOperations struct {
	db        *sql.DB
	sessionID string
}

// NewDatabaseOperations creates operations bound to sessionID.
func NewDatabaseOperations(db *sql.DB, sessionID string) *DatabaseOperations {
	return &DatabaseOperations{db: db, sessionID: sessionID}
}

// SessionID returns the session the operations are scoped to.
func (ops *DatabaseOperations) SessionID() string {
	return ops.sessionID
}

// CreateSession records the start of this session.
func (ops *DatabaseOperations) CreateSession(s *Session) error {
	_, err := ops.db.Exec(
		`INSERT INTO sessions (id, started_at, config_json) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		ops.sessionID, toMillis(s.StartedAt), s.ConfigJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", ops.sessionID, err)
	}
	return nil
}

// InsertChatMessage journals a chat post. Re-inserting an id is a no-op.
func (ops *DatabaseOperations) InsertChatMessage(msg *ChatMessage) error {
	_, err := ops.db.Exec(
		`INSERT INTO chat_messages (id, session_id, channel, author, text, post_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		msg.ID, ops.sessionID, msg.Channel, msg.Author, msg.Text, msg.PostType, toMillis(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat message %s: %w", msg.ID, err)
	}
	return nil
}

// ListChatMessages returns the most recent limit messages in channel, oldest first.
// An empty channel matches every channel; limit <= 0 returns all.
func (ops *DatabaseOperations) ListChatMessages(channel string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := ops.db.Query(
		`SELECT id, channel, author, text, post_type, created_at FROM (
			SELECT id, channel, author, text, post_type, created_at, rowid FROM chat_messages
			WHERE session_id = ? AND (? = '' OR channel = ?)
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		) ORDER BY created_at ASC, rowid ASC`,
		ops.sessionID, channel, channel, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		var created int64
		if err := rows.Scan(&m.ID, &m.Channel, &m.Author, &m.Text, &m.PostType, &created); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.CreatedAt = fromMillis(created)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}
	return out, nil
}

// UpsertWorkItem stores the latest snapshot of an agent's work item.
func (ops *DatabaseOperations) UpsertWorkItem(w *WorkRecord) error {
	blockers, err := marshalList(w.Blockers)
	if err != nil {
		return err
	}
	files, err := marshalList(w.Files)
	if err != nil {
		return err
	}
	_, err = ops.db.Exec(
		`INSERT INTO work_items (session_id, agent_id, project_id, task_id, status, progress, attempt, blockers, files, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, agent_id) DO UPDATE SET
			project_id = excluded.project_id,
			task_id = excluded.task_id,
			status = excluded.status,
			progress = excluded.progress,
			attempt = excluded.attempt,
			blockers = excluded.blockers,
			files = excluded.files,
			updated_at = excluded.updated_at`,
		ops.sessionID, w.AgentID, w.ProjectID, w.TaskID, w.Status, w.Progress, w.Attempt, blockers, files, toMillis(w.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert work item for %s: %w", w.AgentID, err)
	}
	return nil
}

// GetWorkItem returns the snapshot for agentID.
func (ops *DatabaseOperations) GetWorkItem(agentID string) (*WorkRecord, error) {
	row := ops.db.QueryRow(
		`SELECT agent_id, project_id, task_id, status, progress, attempt, blockers, files, updated_at
		 FROM work_items WHERE session_id = ? AND agent_id = ?`,
		ops.sessionID, agentID,
	)
	w, err := scanWork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("work item for %s: %w", agentID, ErrNotFound)
	}
	return w, err
}

// ListWorkItems returns every snapshot ordered by agent id.
func (ops *DatabaseOperations) ListWorkItems() ([]*WorkRecord, error) {
	rows, err := ops.db.Query(
		`SELECT agent_id, project_id, task_id, status, progress, attempt, blockers, files, updated_at
		 FROM work_items WHERE session_id = ? ORDER BY agent_id`,
		ops.sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query work items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*WorkRecord
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate work items: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWork(s scanner) (*WorkRecord, error) {
	var w WorkRecord
	var blockers, files string
	var updated int64
	if err := s.Scan(&w.AgentID, &w.ProjectID, &w.TaskID, &w.Status, &w.Progress, &w.Attempt, &blockers, &files, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan work item: %w", err)
	}
	if err := json.Unmarshal([]byte(blockers), &w.Blockers); err != nil {
		return nil, fmt.Errorf("failed to decode blockers: %w", err)
	}
	if err := json.Unmarshal([]byte(files), &w.Files); err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}
	w.UpdatedAt = fromMillis(updated)
	return &w, nil
}

// UpsertReview stores the latest snapshot of a review.
func (ops *DatabaseOperations) UpsertReview(r *ReviewRecord) error {
	reviewers, err := marshalList(r.Reviewers)
	if err != nil {
		return err
	}
	_, err = ops.db.Exec(
		`INSERT INTO reviews (session_id, repository, pr_number, project_id, task_id, author, reviewers, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, repository, pr_number) DO UPDATE SET
			project_id = excluded.project_id,
			task_id = excluded.task_id,
			author = excluded.author,
			reviewers = excluded.reviewers,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		ops.sessionID, r.Repository, r.PRNumber, r.ProjectID, r.TaskID, r.Author, reviewers, r.Status, toMillis(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert review %s#%d: %w", r.Repository, r.PRNumber, err)
	}
	return nil
}

// GetReview returns the review snapshot for repository#pr.
func (ops *DatabaseOperations) GetReview(repository string, pr int) (*ReviewRecord, error) {
	var r ReviewRecord
	var reviewers string
	var updated int64
	err := ops.db.QueryRow(
		`SELECT repository, pr_number, project_id, task_id, author, reviewers, status, updated_at
		 FROM reviews WHERE session_id = ? AND repository = ? AND pr_number = ?`,
		ops.sessionID, repository, pr,
	).Scan(&r.Repository, &r.PRNumber, &r.ProjectID, &r.TaskID, &r.Author, &reviewers, &r.Status, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review %s#%d: %w", repository, pr, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review %s#%d: %w", repository, pr, err)
	}
	if err := json.Unmarshal([]byte(reviewers), &r.Reviewers); err != nil {
		return nil, fmt.Errorf("failed to decode reviewers: %w", err)
	}
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}

// InsertVerdict records a reviewer's verdict. The first verdict per reviewer wins;
// it reports whether this call stored the row.
func (ops *DatabaseOperations) InsertVerdict(v *VerdictRecord) (bool, error) {
	res, err := ops.db.Exec(
		`INSERT INTO verdicts (session_id, repository, pr_number, reviewer, approved, changes_requested, fallback, summary, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, repository, pr_number, reviewer) DO NOTHING`,
		ops.sessionID, v.Repository, v.PRNumber, v.Reviewer, v.Approved, v.ChangesRequested, v.Fallback, v.Summary, v.Body, toMillis(v.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert verdict %s#%d by %s: %w", v.Repository, v.PRNumber, v.Reviewer, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// ListVerdicts returns the verdicts on repository#pr in the order they were recorded.
func (ops *DatabaseOperations) ListVerdicts(repository string, pr int) ([]*VerdictRecord, error) {
	rows, err := ops.db.Query(
		`SELECT repository, pr_number, reviewer, approved, changes_requested, fallback, summary, body, created_at
		 FROM verdicts WHERE session_id = ? AND repository = ? AND pr_number = ?
		 ORDER BY created_at, rowid`,
		ops.sessionID, repository, pr,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*VerdictRecord
	for rows.Next() {
		var v VerdictRecord
		var created int64
		if err := rows.Scan(&v.Repository, &v.PRNumber, &v.Reviewer, &v.Approved, &v.ChangesRequested, &v.Fallback, &v.Summary, &v.Body, &created); err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		v.CreatedAt = fromMillis(created)
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate verdicts: %w", err)
	}
	return out, nil
}

// UpsertTaskStatus stores the latest status of a task.
func (ops *DatabaseOperations) UpsertTaskStatus(t *TaskRecord) error {
	_, err := ops.db.Exec(
		`INSERT INTO task_status (session_id, project_id, task_id, status, assignee, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, project_id, task_id) DO UPDATE SET
			status = excluded.status,
			assignee = excluded.assignee,
			updated_at = excluded.updated_at`,
		ops.sessionID, t.ProjectID, t.TaskID, t.Status, t.Assignee, toMillis(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task status %s/%s: %w", t.ProjectID, t.TaskID, err)
	}
	return nil
}

// ListTaskStatuses returns the task statuses of projectID ordered by task id.
func (ops *DatabaseOperations) ListTaskStatuses(projectID string) ([]*TaskRecord, error) {
	rows, err := ops.db.Query(
		`SELECT project_id, task_id, status, assignee, updated_at
		 FROM task_status WHERE session_id = ? AND project_id = ? ORDER BY task_id`,
		ops.sessionID, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query task statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*TaskRecord
	for rows.Next() {
		var t TaskRecord
		var updated int64
		if err := rows.Scan(&t.ProjectID, &t.TaskID, &t.Status, &t.Assignee, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan task status: %w", err)
		}
		t.UpdatedAt = fromMillis(updated)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task statuses: %w", err)
	}
	return out, nil
}

func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

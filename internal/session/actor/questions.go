package actor

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/agent-ops/relay/internal/eventbus"
	"github.com/agent-ops/relay/internal/metrics"
	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/wire"
	"github.com/agent-ops/relay/pkg/logger"
)

// createQuestion registers a runner question, fans it out to clients and
// arms the expiry alarm. Caller holds a.mu.
func (a *Actor) createQuestion(ctx context.Context, frame wire.RunnerFrame) (models.Question, error) {
	id := frame.ID
	if id == "" {
		id = a.newID()
	}

	var options sql.NullString
	if len(frame.Options) > 0 {
		raw, err := json.Marshal(frame.Options)
		if err != nil {
			return models.Question{}, err
		}
		options = sql.NullString{String: string(raw), Valid: true}
	}

	createdAt := a.nowMs()
	question, err := a.queries.CreateQuestion(ctx, models.CreateQuestionParams{
		ID:          id,
		Text:        frame.Text,
		Options:     options,
		CreatedAtMs: createdAt,
		ExpiresAtMs: sql.NullInt64{Int64: createdAt + a.cfg.questionTTL().Milliseconds(), Valid: true},
	})
	if err != nil {
		return models.Question{}, err
	}

	a.broadcastQuestion(question)
	a.publish(ctx, eventbus.EventQuestionCreated, map[string]interface{}{
		"questionId": question.ID,
		"text":       question.Text,
	})
	a.armAlarmLocked(ctx)
	return question, nil
}

// answerQuestion resolves a pending question with a client answer. The
// guarded update makes the first writer win: an answer that lost the race
// against expiry (or another socket) is dropped without error. Caller holds
// a.mu.
func (a *Actor) answerQuestion(ctx context.Context, questionID, answer string) error {
	affected, err := a.queries.AnswerQuestion(ctx, models.AnswerQuestionParams{
		ID:     questionID,
		Answer: answer,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		logger.Debugf("[actor] session %s: answer for %s lost the race, dropped", a.sessionID, questionID)
		return nil
	}

	question, err := a.queries.GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	a.broadcastQuestion(question)
	if runner := a.sockets.Runner(); runner != nil {
		runner.Send(wire.AnswerFrame{
			Type:       wire.RunnerOutAnswer,
			QuestionID: questionID,
			Answer:     answer,
		})
	}
	a.publish(ctx, eventbus.EventQuestionAnswered, map[string]interface{}{
		"questionId": questionID,
	})
	a.armAlarmLocked(ctx)
	return nil
}

// armAlarmLocked points the single expiry timer at the earliest pending
// deadline, or disarms it when none remains. Caller holds a.mu.
func (a *Actor) armAlarmLocked(ctx context.Context) {
	next, err := a.queries.NextQuestionExpiry(ctx)
	if err != nil {
		logger.Warnf("[actor] session %s: read next expiry: %v", a.sessionID, err)
		return
	}
	if !next.Valid {
		a.stopAlarmLocked()
		return
	}

	delay := time.Duration(next.Int64-a.nowMs()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	if a.alarm != nil {
		a.alarm.Reset(delay)
		return
	}
	a.alarm = time.AfterFunc(delay, a.onAlarm)
}

// stopAlarmLocked disarms the expiry timer. Caller holds a.mu.
func (a *Actor) stopAlarmLocked() {
	if a.alarm == nil {
		return
	}
	a.alarm.Stop()
	a.alarm = nil
}

// onAlarm is the timer callback. It expires everything due and re-arms for
// whatever deadline comes next.
func (a *Actor) onAlarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	ctx := context.Background()
	a.expireDueLocked(ctx)
	a.armAlarmLocked(ctx)
}

// expireDueLocked transitions every overdue pending question, tells the
// runner each one is dead via the synthetic answer, and mirrors the new
// state to clients. Caller holds a.mu.
func (a *Actor) expireDueLocked(ctx context.Context) {
	expired, err := a.queries.ExpireDueQuestions(ctx, a.nowMs())
	if err != nil {
		logger.Errorf("[actor] session %s: expire questions: %v", a.sessionID, err)
	}

	runner := a.sockets.Runner()
	for _, question := range expired {
		metrics.QuestionsExpired.Inc()
		a.broadcastQuestion(question)
		if runner != nil {
			runner.Send(wire.AnswerFrame{
				Type:       wire.RunnerOutAnswer,
				QuestionID: question.ID,
				Answer:     wire.ExpiredAnswer,
			})
		}
		a.publish(ctx, eventbus.EventQuestionExpired, map[string]interface{}{
			"questionId": question.ID,
		})
	}
}

package repo

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/domain"
)

// ListSessionSummaries returns one summary per session owned by userID with
// its latest message and message count. Summaries are ordered by latest
// message time descending, falling back to the session's creation time for
// empty sessions; ties are broken by ID ascending.
//
// Three queries run regardless of how many sessions the user owns.
func ListSessionSummaries(ctx context.Context, db *gorm.DB, userID string) ([]domain.SessionSummary, error) {
	sessions, err := ListSessions(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SessionSummary, 0, len(sessions))
	if len(sessions) == 0 {
		return out, nil
	}

	var counts []struct {
		SessionID string
		N         int64
	}
	if err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("session_id, COUNT(*) AS n").
		Where("user_id = ?", userID).
		Group("session_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	countBy := make(map[string]int64, len(counts))
	for _, c := range counts {
		countBy[c.SessionID] = c.N
	}

	// The latest message per session, selected by a correlated subquery.
	var latest []domain.Message
	if err := db.WithContext(ctx).
		Table("messages AS m").
		Select("m.*").
		Where("m.user_id = ?", userID).
		Where("m.timestamp = (SELECT MAX(m2.timestamp) FROM messages AS m2 WHERE m2.session_id = m.session_id)").
		Order("m.id ASC").
		Scan(&latest).Error; err != nil {
		return nil, err
	}
	lastBy := make(map[string]domain.Message, len(latest))
	for _, m := range latest {
		if _, seen := lastBy[m.SessionID]; !seen {
			lastBy[m.SessionID] = m
		}
	}

	for _, s := range sessions {
		sum := domain.SessionSummary{
			ID:           s.ID,
			Title:        s.Title,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
			MessageCount: countBy[s.ID],
		}
		if m, ok := lastBy[s.ID]; ok {
			content := m.Content
			at := m.Timestamp
			sum.LastMessage = &content
			sum.LastMessageAt = &at
		}
		out = append(out, sum)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := activityAt(out[i]), activityAt(out[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func activityAt(s domain.SessionSummary) time.Time {
	if s.LastMessageAt != nil {
		return *s.LastMessageAt
	}
	return s.CreatedAt
}

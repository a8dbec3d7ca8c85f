package auth

import (
	"strings"

	"pocusai/internal/models"
)

// StatusAll disables the status filter of FilterUsers.
const StatusAll = "all"

// Summary counts accounts per status.
type Summary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// FilterUsers keeps the users whose username, email or occupation contains
// query (case-insensitive) and whose status matches. An empty status or
// StatusAll matches every status.
func FilterUsers(users []*models.User, query, status string) []*models.User {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]*models.User, 0, len(users))
	for _, u := range users {
		if status != "" && status != StatusAll && string(u.Status) != status {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(u.Username), query) &&
			!strings.Contains(strings.ToLower(u.Email), query) &&
			!strings.Contains(strings.ToLower(u.Occupation), query) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func Summarize(users []*models.User) Summary {
	sum := Summary{Total: len(users)}
	for _, u := range users {
		switch u.Status {
		case models.StatusPending:
			sum.Pending++
		case models.StatusApproved:
			sum.Approved++
		case models.StatusRejected:
			sum.Rejected++
		}
	}
	return sum
}

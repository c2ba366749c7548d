package jira

import (
	"strconv"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

type sprintDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

func (s sprintDTO) toDomain() domain.Sprint {
	return domain.Sprint{ID: strconv.FormatInt(s.ID, 10), Name: s.Name, State: s.State}
}

type sprintPage struct {
	MaxResults int         `json:"maxResults"`
	StartAt    int         `json:"startAt"`
	Total      int         `json:"total"`
	IsLast     bool        `json:"isLast"`
	Values     []sprintDTO `json:"values"`
}

type issuePage struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []issueDTO `json:"issues"`
}

type issueDTO struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Created string `json:"created"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
	} `json:"fields"`
	Changelog struct {
		Total     int          `json:"total"`
		Histories []historyDTO `json:"histories"`
	} `json:"changelog"`
}

// changelogPage is one page of /issue/{key}/changelog.
type changelogPage struct {
	StartAt    int          `json:"startAt"`
	MaxResults int          `json:"maxResults"`
	Total      int          `json:"total"`
	IsLast     bool         `json:"isLast"`
	Values     []historyDTO `json:"values"`
}

type historyDTO struct {
	Created string `json:"created"`
	Items   []struct {
		Field      string `json:"field"`
		FromString string `json:"fromString"`
		ToString   string `json:"toString"`
	} `json:"items"`
}

// toDomain converts the wire issue. Timestamps Jira sends in an unknown layout become the zero time.
func (d issueDTO) toDomain() domain.Issue {
	iss := domain.Issue{
		Key:     d.Key,
		Summary: d.Fields.Summary,
		Type:    d.Fields.IssueType.Name,
		Status:  d.Fields.Status.Name,
		Created: derefTime(parseTimeUTC(d.Fields.Created)),
	}
	for _, h := range d.Changelog.Histories {
		entry := domain.HistoryEntry{At: derefTime(parseTimeUTC(h.Created))}
		for _, it := range h.Items {
			entry.Items = append(entry.Items, domain.FieldChange{Field: it.Field, From: it.FromString, To: it.ToString})
		}
		iss.History = append(iss.History, entry)
	}
	return iss
}

func parseTimeUTC(s string) *time.Time {
	if s == "" {
		return nil
	}
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05-0700"}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			tt := t.UTC()
			return &tt
		}
	}
	return nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

package model

type KnowledgeBase struct {
	ID          string `json:"id"`
	TenantID    string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}

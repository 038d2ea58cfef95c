package watches

import (
	"time"
)

type (
	Watch struct {
		ID        int64     `json:"id,string"`
		OwnerID   int64     `json:"owner_id,string"`
		Query     string    `json:"query"`
		MaxPrice  *float64  `json:"max_price,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	UpsertWatchInput struct {
		OwnerID  int64    `json:"owner_id" validate:"required,gt=0"`
		Query    string   `json:"query" validate:"required,max=200"`
		MaxPrice *float64 `json:"max_price,omitempty" validate:"omitempty,gt=0"`
	}

	UpsertWatchOutput struct {
		Watch   *Watch `json:"watch"`
		Created bool   `json:"created"`
	}

	DeleteWatchInput struct {
		OwnerID int64  `json:"owner_id" validate:"required,gt=0"`
		Query   string `json:"query" validate:"required"`
	}

	DeleteWatchOutput struct {
	}

	ListWatchesInput struct {
		OwnerID int64 `json:"owner_id" validate:"required,gt=0"`
	}

	ListWatchesOutput struct {
		Watches []*Watch `json:"watches"`
	}
)

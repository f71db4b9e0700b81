package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/orderbook-relay/internal/model"
)

// ErrRejected is returned when the gateway answers a lifecycle call with
// ok=false, the terminal's way of reporting a failed operation.
var ErrRejected = errors.New("terminal rejected request")

// statusResponse is the body of every lifecycle response.
type statusResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func checkStatus(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	var st statusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if !st.OK {
		return fmt.Errorf("%w: %s", ErrRejected, st.Error)
	}
	return nil
}

// InitializeRequest starts the terminal. An empty path attaches to a running one.
type InitializeRequest struct {
	Path string `json:"path,omitempty"`
}

// LoginRequest logs the terminal in to a trading account.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// BookEntry is one depth-of-market entry as returned by the gateway.
type BookEntry struct {
	Type      int32   `json:"type"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	VolumeDbl float64 `json:"volume_dbl"`
}

// BookResponse is the body of GET /market_book/{symbol}. A null book means
// the terminal had nothing to report.
type BookResponse struct {
	Symbol string      `json:"symbol"`
	Book   []BookEntry `json:"book"`
}

// ToSnapshot converts the response, keeping entry order.
func (r BookResponse) ToSnapshot(symbol string) model.Snapshot {
	snap := model.Snapshot{Symbol: symbol}
	if len(r.Book) == 0 {
		return snap
	}
	snap.Levels = make([]model.BookLevel, len(r.Book))
	for i, e := range r.Book {
		snap.Levels[i] = model.BookLevel{
			Type:      e.Type,
			Price:     e.Price,
			Volume:    e.Volume,
			VolumeDbl: e.VolumeDbl,
		}
	}
	return snap
}

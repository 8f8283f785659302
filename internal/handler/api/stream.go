package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinSight/internal/domain/models"
	"FinSight/internal/service/metrics"
	"FinSight/internal/usecase"
	xhttp "FinSight/pkg/http"
	applogger "FinSight/pkg/logger"
	"FinSight/pkg/util"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamFrame is one websocket message.
type StreamFrame struct {
	Type  string               `json:"type"` // "insights" or "error"
	At    time.Time            `json:"at"`
	Data  *models.InsightBatch `json:"data,omitempty"`
	Error string               `json:"error,omitempty"`
}

// Stream pushes a fresh batch for the requested symbols every interval until
// the client disconnects.
func (h *InsightHandler) Stream(c echo.Context) error {
	req := &models.StreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols := util.SplitSymbols(req.Symbols)
	if len(symbols) == 0 || len(symbols) > h.limits.MaxSymbols {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_SYMBOLS",
			Field:   "symbols",
			Message: fmt.Sprintf("between 1 and %d symbols are allowed", h.limits.MaxSymbols),
		}})
	}
	interval, err := h.streamInterval(req.Interval)
	if err != nil {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code: "ERR_INTERVAL", Field: "interval", Message: err.Error(),
		}})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	defer conn.Close()

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()
	h.l.Debug("stream opened",
		applogger.Strings("symbols", symbols),
		applogger.Duration("interval_ms", interval))

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go readUntilClosed(conn, cancel)

	params := usecase.BatchParams{Symbols: symbols, AssetClass: models.AssetClass(req.AssetClass)}
	push := func() bool {
		frame := StreamFrame{Type: "insights"}
		batch, err := h.insights.AnalyzeMany(ctx, params)
		if err != nil {
			frame.Type, frame.Error = "error", err.Error()
		} else {
			frame.Data = batch
		}
		frame.At = time.Now().UTC()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			return false
		}
		return frame.Error == ""
	}

	if !push() {
		return nil
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case <-tick.C:
			if !push() {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}

func (h *InsightHandler) streamInterval(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("interval must be a duration like 15s")
	}
	if d < h.limits.MinInterval {
		d = h.limits.MinInterval
	}
	if d > h.limits.MaxInterval {
		d = h.limits.MaxInterval
	}
	return d, nil
}

// readUntilClosed drains client frames so pongs and close frames are
// processed, and cancels once the connection goes away.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/engine"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/eventbus"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/processor"
	xhttp "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/http"
	xlogger "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
)

// OpsHandler exposes the operational HTTP surface: health, stats,
// event replay and live policy control.
type OpsHandler struct {
	logger *xlogger.Logger
	bus    *eventbus.Bus
	eng    *engine.Engine
	proc   *processor.Processor

	upgrader websocket.Upgrader
}

func NewOpsHandler(logger *xlogger.Logger, bus *eventbus.Bus, eng *engine.Engine, proc *processor.Processor) *OpsHandler {
	return &OpsHandler{
		logger: logger,
		bus:    bus,
		eng:    eng,
		proc:   proc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/stats", h.Stats)
	g.GET("/events/replay", h.Replay)
	g.GET("/events/recent", h.Recent)
	g.POST("/engine/config", h.UpdateConfig)
	g.POST("/engine/block", h.BlockSymbol)
	g.POST("/engine/unblock", h.UnblockSymbol)
	g.POST("/processor/circuit", h.UpdateCircuit)

	e.GET("/ws/events", h.EventsTap)
}

func (h *OpsHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *OpsHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"bus":       h.bus.Stats(),
		"engine":    h.eng.Stats(),
		"processor": h.proc.Stats(),
	})
}

func (h *OpsHandler) Replay(c echo.Context) error {
	req := &models.ReplayRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var from, to time.Time
	if req.From != "" {
		t, ok := xhttp.ParseTime(req.From)
		if !ok {
			return xhttp.BadRequestResponse(c, "invalid from timestamp")
		}
		from = t
	}
	if req.To != "" {
		t, ok := xhttp.ParseTime(req.To)
		if !ok {
			return xhttp.BadRequestResponse(c, "invalid to timestamp")
		}
		to = t
	}

	events, err := h.bus.Replay(models.ChannelType(req.Channel), from, to, req.Limit)
	if err != nil {
		h.logger.Error("replay error", xlogger.String("channel", req.Channel), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, events, int64(len(events)))
}

func (h *OpsHandler) Recent(c echo.Context) error {
	req := &models.RecentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	events := h.bus.Recent(models.ChannelType(req.Channel), req.N)
	return xhttp.ListResponse(c, events, int64(len(events)))
}

func (h *OpsHandler) UpdateConfig(c echo.Context) error {
	req := &models.UpdateConfigRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.eng.UpdateConfig(req.Field, req.Value); err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}
	h.logger.Info("engine config updated",
		xlogger.String("field", req.Field), xlogger.Any("value", req.Value))
	return xhttp.SuccessResponse(c, h.eng.Stats().Config)
}

func (h *OpsHandler) BlockSymbol(c echo.Context) error {
	req := &models.BlockSymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.eng.BlockSymbol(req.Symbol)
	h.logger.Info("symbol blocked", xlogger.String("symbol", req.Symbol))
	return xhttp.NoContentResponse(c)
}

func (h *OpsHandler) UnblockSymbol(c echo.Context) error {
	req := &models.BlockSymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.eng.UnblockSymbol(req.Symbol)
	h.logger.Info("symbol unblocked", xlogger.String("symbol", req.Symbol))
	return xhttp.NoContentResponse(c)
}

func (h *OpsHandler) UpdateCircuit(c echo.Context) error {
	req := &models.UpdateCircuitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.proc.UpdateCircuitState(req.State)
	return xhttp.NoContentResponse(c)
}

// EventsTap upgrades to a websocket and streams live events from the
// requested channel (default: decisions). Slow consumers get cut, not
// buffered: the tap serves dashboards, the durable log serves audits.
func (h *OpsHandler) EventsTap(c echo.Context) error {
	channel := c.QueryParam("channel")
	if channel == "" {
		channel = string(models.ChannelDecision)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	out := make(chan *models.Event, 64)
	sub := h.bus.SubscribeAsync([]models.ChannelType{models.ChannelType(channel)}, func(e *models.Event) {
		select {
		case out <- e:
		default: // tap overflow, drop
		}
	})

	go func() {
		defer func() {
			h.bus.Unsubscribe(sub)
			conn.Close()
		}()
		for e := range out {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				h.logger.Debug("ws tap closed", xlogger.Error(err))
				return
			}
		}
	}()

	// Reader loop detects client close; incoming payloads are ignored.
	go func() {
		defer close(out)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return nil
}

package relay

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tokmz/scchat/pkg/logger"
)

// frameHandler 帧处理器
type frameHandler func(cl *client, raw []byte)

// dispatcher 入站帧的唯一入口：按 type 判别字段路由到恰好一个处理器。
// 解析失败的帧被静默丢弃（不向对端回传任何错误——容忍畸形或恶意帧
// 而不中断会话），未知类型同样被忽略。
type dispatcher struct {
	handlers map[string]frameHandler
	log      logger.Logger
	metrics  Metrics
}

func newDispatcher(log logger.Logger, metrics Metrics) *dispatcher {
	return &dispatcher{
		handlers: make(map[string]frameHandler),
		log:      log,
		metrics:  metrics,
	}
}

// register 注册处理器；重复注册同一类型是编程错误
func (d *dispatcher) register(frameType string, h frameHandler) error {
	if _, exists := d.handlers[frameType]; exists {
		return ErrHandlerExists
	}
	d.handlers[frameType] = h
	return nil
}

// handleTyped 注册带类型解析的处理器：整帧反序列化为 Req 后交给 fn，
// 解析失败静默丢弃
func handleTyped[Req any](d *dispatcher, frameType string, fn func(cl *client, req *Req)) {
	_ = d.register(frameType, func(cl *client, raw []byte) {
		var req Req
		if err := json.Unmarshal(raw, &req); err != nil {
			d.metrics.IncrementInvalidFrames()
			d.log.Debug("frame payload rejected", zap.String("type", frameType), zap.Error(err))
			return
		}
		fn(cl, &req)
	})
}

// dispatch 解析帧头并路由
func (d *dispatcher) dispatch(cl *client, raw []byte) {
	var head envelopeHead
	if err := json.Unmarshal(raw, &head); err != nil {
		d.metrics.IncrementInvalidFrames()
		d.log.Debug("malformed frame dropped", zap.Error(err))
		return
	}

	h, ok := d.handlers[head.Type]
	if !ok {
		d.log.Debug("unknown frame type ignored", zap.String("type", head.Type))
		return
	}
	h(cl, raw)
}

package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"options-mm/infrastructure/monitor"
	"options-mm/instrument"
	"options-mm/order"
)

var ErrClosed = errors.New("gateway closed")

// Config 连接参数。
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	RateLimit float64 // 每秒批次数
	Burst     int
}

// Client 交易所 websocket 流：读取行情/订单/持仓事件，发送批量操作。
// 不做断线重连，流出错时通过 Errors() 报告。
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	limiter RateLimiter
	log     *zap.Logger
	monitor *monitor.Monitor

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu          sync.Mutex
	listener    Listener
	backlog     []Envelope // 订阅前到达的事件
	instruments []instrument.Instrument

	instrumentsReady chan struct{}
	accountReady     chan struct{}
	accountOnce      sync.Once
	errs             chan error
	closeOnce        sync.Once
	done             chan struct{}
}

func NewClient(cfg Config, log *zap.Logger, mon *monitor.Monitor) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:              cfg,
		dialer:           websocket.DefaultDialer,
		limiter:          NewTokenBucketLimiter(cfg.RateLimit, cfg.Burst),
		log:              log.Named("gateway"),
		monitor:          mon,
		instrumentsReady: make(chan struct{}),
		accountReady:     make(chan struct{}),
		errs:             make(chan error, 16),
		done:             make(chan struct{}),
	}
}

// Connect 建立连接、发送鉴权并启动读循环。
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	c.conn = conn
	c.monitor.RecordWSConnection()

	ts := time.Now().UnixMilli()
	if err := c.write(Envelope{Type: TypeAuth, Data: mustJSON(AuthData{
		APIKey:    c.cfg.APIKey,
		Timestamp: ts,
		Signature: Sign(c.cfg.APISecret, c.cfg.APIKey, ts),
	})}); err != nil {
		conn.Close()
		c.conn = nil
		return fmt.Errorf("auth: %w", err)
	}
	go c.readLoop()
	c.log.Info("connected", zap.String("url", c.cfg.URL))
	return nil
}

func sign(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Instruments 等待交易所下发合约列表。
func (c *Client) Instruments(ctx context.Context) ([]instrument.Instrument, error) {
	select {
	case <-c.instrumentsReady:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.instruments, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe 设置事件接收者，回放订阅前缓存的事件，并请求行情与账户推送。
func (c *Client) Subscribe(l Listener) error {
	c.mu.Lock()
	backlog := c.backlog
	c.backlog = nil
	for _, env := range backlog {
		c.deliver(l, env)
	}
	c.listener = l
	c.mu.Unlock()
	return c.write(Envelope{Type: TypeSubscribe})
}

// AwaitAccountState 等待第一条账户快照交给 listener。
func (c *Client) AwaitAccountState(ctx context.Context) error {
	select {
	case <-c.accountReady:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send 按限流发送一批操作。
func (c *Client) Send(ctx context.Context, ops []order.Operation) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(BatchMessage{Type: TypeBatch, Batch: ops})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if err := c.writeRaw(b); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	c.monitor.RecordBatchSent()
	return nil
}

// Errors 读循环或事件处理中的错误。
func (c *Client) Errors() <-chan error { return c.errs }

// Done 读循环结束时关闭。
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.conn == nil {
			close(c.done)
			return
		}
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	<-c.done
	return err
}

func (c *Client) write(env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.writeRaw(b)
}

func (c *Client) writeRaw(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrClosed
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				c.report(fmt.Errorf("read: %w", err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Warn("malformed message", zap.Error(err), zap.ByteString("raw", raw))
			continue
		}
		c.monitor.RecordWSMessage(env.Type)
		c.handle(env)
	}
}

func (c *Client) handle(env Envelope) {
	if env.Type == TypeInstruments {
		insts, err := DecodeInstruments(env.Data)
		if err != nil {
			c.report(err)
			return
		}
		c.mu.Lock()
		first := c.instruments == nil
		c.instruments = insts
		c.mu.Unlock()
		if first {
			close(c.instrumentsReady)
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		c.backlog = append(c.backlog, env)
		return
	}
	c.deliver(c.listener, env)
}

// deliver 调用方持有 c.mu。
func (c *Client) deliver(l Listener, env Envelope) {
	handled, err := dispatch(l, env)
	if !handled {
		c.log.Debug("ignoring message", zap.String("type", env.Type))
		return
	}
	if err != nil {
		c.report(fmt.Errorf("%s: %w", env.Type, err))
		return
	}
	if env.Type == TypeAccountState {
		c.accountOnce.Do(func() { close(c.accountReady) })
	}
}

func (c *Client) report(err error) {
	c.log.Error("stream error", zap.Error(err))
	select {
	case c.errs <- err:
	default:
	}
}

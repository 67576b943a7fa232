package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremon "github.com/kilianp07/fieldalloc/core/monitoring"
	"github.com/kilianp07/fieldalloc/infra/logger"
)

// ErrAckTimeout is returned when no acknowledgment arrives before the timeout.
var ErrAckTimeout = errors.New("timeout waiting for ack")

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

func (c Config) prefix() string {
	if c.TopicPrefix == "" {
		return "fieldalloc"
	}
	return strings.TrimSuffix(c.TopicPrefix, "/")
}

// Notice is the payload sent to an engineer's device when a booking is
// assigned to them or taken away by an override.
type Notice struct {
	NoticeID   string  `json:"notice_id"`
	Kind       string  `json:"kind"`
	BookingID  string  `json:"booking_id"`
	EngineerID string  `json:"engineer_id"`
	Date       string  `json:"date,omitempty"`
	HalfDay    string  `json:"half_day,omitempty"`
	Composite  float64 `json:"composite,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Timestamp  int64   `json:"timestamp"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient publishes allocation notices and tracks device acknowledgments.
type PahoClient struct {
	cli    pahoClient
	prefix string
	qos    map[string]byte

	mu         sync.Mutex
	ackChans   map[string]chan struct{}
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the broker, announces the service as online and
// subscribes to the acknowledgment topic.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		prefix:     cfg.prefix(),
		ackChans:   make(map[string]chan struct{}),
		logger:     log,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if pc.maxRetries <= 0 {
		pc.maxRetries = 3
	}
	if pc.backoff <= 0 {
		pc.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		c.Publish(pc.StatusTopic(), 1, true, "online")
		if token := c.Subscribe(pc.AckTopic(), pc.qosFor("ack"), pc.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config. The status topic
// carries a retained "offline" will.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.SetWill(cfg.prefix()+"/status", "offline", 1, true)
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// AllocationTopic is where notices for one engineer are published.
func (p *PahoClient) AllocationTopic(engineerID string) string {
	return fmt.Sprintf("%s/allocations/%s", p.prefix, engineerID)
}

// OutcomeTopic is where booking outcomes are published.
func (p *PahoClient) OutcomeTopic(bookingID string) string {
	return fmt.Sprintf("%s/bookings/%s/outcome", p.prefix, bookingID)
}

// AckTopic receives {"notice_id": "..."} from engineer devices.
func (p *PahoClient) AckTopic() string { return p.prefix + "/acks" }

// StatusTopic carries the retained online/offline flag.
func (p *PahoClient) StatusTopic() string { return p.prefix + "/status" }

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		NoticeID string `json:"notice_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.ackChans[m.NoticeID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		p.logger.Debugf("received ack %s", m.NoticeID)
	}
}

// SendNotice publishes n to the engineer's allocation topic and returns the
// notice identifier used for acknowledgment tracking.
func (p *PahoClient) SendNotice(n Notice) (string, error) {
	if n.NoticeID == "" {
		n.NoticeID = uuid.NewString()
	}
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	topic := p.AllocationTopic(n.EngineerID)
	if err := p.publish(topic, p.qosFor("allocation"), false, payload); err != nil {
		coremon.CaptureException(err, map[string]string{
			"module":      "mqtt",
			"booking_id":  n.BookingID,
			"engineer_id": n.EngineerID,
		})
		return "", err
	}
	p.logger.Infof("sent %s notice %s to %s", n.Kind, n.NoticeID, topic)

	p.mu.Lock()
	p.ackChans[n.NoticeID] = make(chan struct{}, 1)
	p.mu.Unlock()
	return n.NoticeID, nil
}

// PublishJSON publishes v retained on topic.
func (p *PahoClient) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.publish(topic, p.qosFor("outcome"), true, payload)
}

func (p *PahoClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Warnf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return publishErr
}

// WaitForAck blocks until the device acknowledges the notice or the timeout
// expires.
func (p *PahoClient) WaitForAck(noticeID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	ch := p.ackChans[noticeID]
	p.mu.Unlock()
	if ch == nil {
		return false, fmt.Errorf("unknown notice %s", noticeID)
	}
	defer func() {
		p.mu.Lock()
		delete(p.ackChans, noticeID)
		p.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true, nil
	case <-timer.C:
		return false, ErrAckTimeout
	}
}

// Disconnect publishes the offline flag and closes the connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Publish(p.StatusTopic(), 1, true, "offline").Wait()
		p.cli.Disconnect(250)
	}
}

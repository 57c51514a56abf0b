package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	gatewaytypes "github.com/frahmantamala/reservation-payments/internal/core/datamodel/paymentgateway"
)

const MaxLogEntries = 20

// Log entry contexts.
const (
	LogContextCreate = "create"
	LogContextIntent = "intent"
	LogContextRefund = "refund"
)

type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Context   string    `json:"context"`
}

// Metadata is the audit blob stored with every payment row.
type Metadata struct {
	LatestIntent    json.RawMessage `json:"latest_intent,omitempty"`
	LatestRefund    json.RawMessage `json:"latest_refund,omitempty"`
	ClientSecret    string          `json:"client_secret,omitempty"`
	IntentStatus    string          `json:"intent_status,omitempty"`
	RequestedAmount string          `json:"requested_amount,omitempty"`
	Logs            []LogEntry      `json:"logs"`
}

// AppendLog adds entry and keeps only the newest MaxLogEntries.
func (m *Metadata) AppendLog(entry LogEntry) {
	logs := make([]LogEntry, 0, len(m.Logs)+1)
	logs = append(logs, m.Logs...)
	logs = append(logs, entry)
	if len(logs) > MaxLogEntries {
		logs = logs[len(logs)-MaxLogEntries:]
	}
	m.Logs = logs
}

func (m Metadata) JSON() ([]byte, error) {
	if m.Logs == nil {
		m.Logs = []LogEntry{}
	}
	return json.Marshal(m)
}

// ParseMetadata decodes a stored blob. An empty blob yields empty metadata.
func ParseMetadata(raw []byte) (Metadata, error) {
	var m Metadata
	if len(raw) == 0 || string(raw) == "null" {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("decode payment metadata: %w", err)
	}
	return m, nil
}

// Formatter folds gateway responses into stored metadata.
type Formatter struct {
	now   func() time.Time
	newID func() string
}

func NewFormatter(now func() time.Time) Formatter {
	if now == nil {
		now = time.Now
	}
	return Formatter{now: now, newID: uuid.NewString}
}

// Merge returns a copy of meta with result recorded under context and one log
// entry appended.
func (f Formatter) Merge(meta Metadata, context string, result *gatewaytypes.Result, status Status) Metadata {
	if result != nil {
		switch context {
		case LogContextRefund:
			meta.LatestRefund = result.Raw
		default:
			meta.LatestIntent = result.Raw
		}
		if result.ClientSecret != "" {
			meta.ClientSecret = result.ClientSecret
		}
		if result.Object == "payment_intent" && result.Status != "" {
			meta.IntentStatus = result.Status
		}
	}

	meta.AppendLog(LogEntry{
		ID:        f.newID(),
		Timestamp: f.now().UTC(),
		Status:    status,
		Context:   context,
	})
	return meta
}

// Package workload drives the staging harness: rate-limited producers append
// serialized CloudEvents to buffers and consumers drain them into a sink.
package workload

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"
	"github.com/jittakal/membuffers/pkg/record"
)

// CloudEvent extension attributes carrying staging metadata.
const (
	ExtensionRunID    = "membufrunid"
	ExtensionProducer = "membufproducer"
	ExtensionSequence = "membufsequence"
)

// ContentTypeJSON is the data content type of generated events.
const ContentTypeJSON = "application/json"

// GeneratorConfig contains event generation settings.
type GeneratorConfig struct {
	Source    string
	Type      string
	RunID     string
	MinBytes  int
	MaxBytes  int
	Clock     func() time.Time
	FakerSeed int64
}

// OrderPlacedData is the payload of a generated event.
type OrderPlacedData struct {
	OrderID       string    `json:"orderId"`
	CustomerName  string    `json:"customerName"`
	CustomerEmail string    `json:"customerEmail"`
	Item          string    `json:"item"`
	Quantity      int       `json:"quantity"`
	City          string    `json:"city"`
	PlacedAt      time.Time `json:"placedAt"`
	Note          string    `json:"note"`
}

// Generator generates fake order events.
// A Generator is not safe for concurrent use; each producer owns one.
type Generator struct {
	config GeneratorConfig
	faker  faker.Faker
	logger *slog.Logger
}

// NewGenerator creates a new event generator. An empty RunID is replaced
// with a random UUID.
func NewGenerator(config GeneratorConfig, logger *slog.Logger) *Generator {
	if config.RunID == "" {
		config.RunID = uuid.NewString()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := faker.New()
	if config.FakerSeed != 0 {
		f = faker.NewWithSeed(rand.NewSource(config.FakerSeed))
	}

	return &Generator{
		config: config,
		faker:  f,
		logger: logger,
	}
}

// RunID returns the identifier stamped on every event of this run.
func (g *Generator) RunID() string {
	return g.config.RunID
}

// Generate builds the event staged by producer as its sequence-th entry.
func (g *Generator) Generate(producer int, sequence int64) cloudevents.Event {
	now := g.config.Clock()

	event := cloudevents.NewEvent()
	event.SetSpecVersion(cloudevents.VersionV1)
	event.SetID(uuid.New().String())
	event.SetType(g.config.Type)
	event.SetSource(g.config.Source)
	event.SetTime(now)
	event.SetSubject(fmt.Sprintf("producer-%d", producer))
	event.SetExtension(ExtensionRunID, g.config.RunID)
	event.SetExtension(ExtensionProducer, strconv.Itoa(producer))
	event.SetExtension(ExtensionSequence, strconv.FormatInt(sequence, 10))

	data := OrderPlacedData{
		OrderID:       "O" + g.faker.UUID().V4()[0:8],
		CustomerName:  g.faker.Person().Name(),
		CustomerEmail: g.faker.Internet().Email(),
		Item:          g.faker.Lorem().Sentence(3),
		Quantity:      g.faker.IntBetween(1, 20),
		City:          g.faker.Address().City(),
		PlacedAt:      now,
		Note:          g.note(),
	}

	if err := event.SetData(ContentTypeJSON, data); err != nil {
		g.logger.Error("failed to set event data", "error", err)
	}

	return event
}

// note returns filler text whose length is uniform in [MinBytes, MaxBytes].
func (g *Generator) note() string {
	if g.config.MaxBytes <= 0 {
		return ""
	}
	n := g.faker.IntBetween(g.config.MinBytes, g.config.MaxBytes)

	var b strings.Builder
	for b.Len() < n {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(g.faker.Lorem().Sentence(6))
	}
	return b.String()[:n]
}

// Encode serializes an event as a structured-mode JSON entry.
func Encode(event cloudevents.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}
	return data, nil
}

// Decode parses an entry produced by Encode into a staged record.
// The caller fills in the buffer name and drain time.
func Decode(entry []byte) (record.Record, error) {
	var event cloudevents.Event
	if err := json.Unmarshal(entry, &event); err != nil {
		return record.Record{}, fmt.Errorf("failed to unmarshal CloudEvent: %w", err)
	}

	rec := record.Record{
		Event: record.FromCloudEvent(event),
		Staging: record.Staging{
			Size:     len(entry),
			StagedAt: event.Time(),
		},
	}

	ext := event.Extensions()
	if v, ok := ext[ExtensionProducer].(string); ok {
		producer, err := strconv.Atoi(v)
		if err != nil {
			return rec, fmt.Errorf("invalid %s extension %q: %w", ExtensionProducer, v, err)
		}
		rec.Staging.Origin.Producer = producer
	}
	if v, ok := ext[ExtensionSequence].(string); ok {
		sequence, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("invalid %s extension %q: %w", ExtensionSequence, v, err)
		}
		rec.Staging.Sequence = sequence
	}
	return rec, nil
}

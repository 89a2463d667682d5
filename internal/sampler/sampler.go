package sampler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mpark1306/TempMate12/internal/models"
	"github.com/mpark1306/TempMate12/internal/observability"
	"github.com/mpark1306/TempMate12/internal/sensor"
	"github.com/mpark1306/TempMate12/internal/store"
)

// Sampler acquires one temperature per invocation and appends it to the
// store. The disconnected sentinel is buffered like any other value; a
// sensor read error degrades to the sentinel the same way a detached probe
// does on the bus.
type Sampler struct {
	sensor sensor.Sensor
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// New returns a Sampler appending to st.
func New(s sensor.Sensor, st *store.Store, logger *zap.Logger) *Sampler {
	return &Sampler{sensor: s, store: st, logger: logger, now: time.Now}
}

// Sample takes one reading and buffers it.
func (s *Sampler) Sample(ctx context.Context) {
	temp, err := s.sensor.Read(ctx)
	if err != nil {
		temp = sensor.DisconnectedC
		s.logger.Warn("sensor read failed, buffering sentinel", zap.Error(err))
	}
	r := models.Reading{
		Timestamp:   formatTimestamp(s.now()),
		Temperature: temp,
	}
	s.store.Append(r)
	observability.ReadingsSampledTotal.Inc()
	s.logger.Info("reading buffered",
		zap.String("timestamp", r.Timestamp),
		zap.Float64("temperature_c", r.Temperature),
		zap.Int("buffer_len", s.store.Len()))
}

// formatTimestamp renders t in the wire layout with seconds zeroed, keeping
// the local zone.
func formatTimestamp(t time.Time) string {
	t = t.Add(-time.Duration(t.Second())*time.Second - time.Duration(t.Nanosecond()))
	return t.Format(models.TimestampLayout)
}

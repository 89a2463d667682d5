package sensor

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// BME280 reads temperature from a BME280/BMP280 on the default I2C bus.
type BME280 struct {
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

// NewBME280 opens the default I2C bus and probes the device at addr
// (typically 0x76 or 0x77).
func NewBME280(addr uint16) (*BME280, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("open i2c bus: %w", err)
	}
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("probe bme280 at 0x%x: %w", addr, err)
	}
	return &BME280{bus: bus, dev: dev}, nil
}

// Read senses once and returns degrees Celsius. A bus error surfaces as an
// error; the sampler maps it to the disconnected sentinel.
func (b *BME280) Read(ctx context.Context) (float64, error) {
	var env physic.Env
	if err := b.dev.Sense(&env); err != nil {
		return DisconnectedC, fmt.Errorf("sense: %w", err)
	}
	return env.Temperature.Celsius(), nil
}

// Close halts the device and releases the bus.
func (b *BME280) Close() error {
	if err := b.dev.Halt(); err != nil {
		_ = b.bus.Close()
		return fmt.Errorf("halt bme280: %w", err)
	}
	return b.bus.Close()
}

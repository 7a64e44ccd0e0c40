package sim

import (
	"context"

	"github.com/teslashibe/go-doly/pkg/driver"
)

type script struct {
	readings []driver.Reading
	next     int
	loop     bool
}

// ReadSample implements driver.Sensor. A configured read error wins over a
// script, a script wins over a fixed reading, and a family with neither
// reports driver.ErrDataNotReady.
func (d *Driver) ReadSample(ctx context.Context, family driver.Family) (driver.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.reads[family]++
	if err := d.readErr[family]; err != nil {
		return nil, err
	}
	if s, ok := d.scripts[family]; ok && len(s.readings) > 0 {
		if s.next >= len(s.readings) {
			if !s.loop {
				return s.readings[len(s.readings)-1], nil
			}
			s.next = 0
		}
		r := s.readings[s.next]
		s.next++
		return r, nil
	}
	if r, ok := d.readings[family]; ok {
		return r, nil
	}
	return nil, driver.ErrDataNotReady
}

// SetReading fixes the value returned for the reading's family.
func (d *Driver) SetReading(r driver.Reading) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readings[r.Family()] = r
}

// Script plays readings in order for a family. With loop the script repeats,
// otherwise the last reading sticks.
func (d *Driver) Script(family driver.Family, loop bool, readings ...driver.Reading) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[family] = &script{readings: readings, loop: loop}
}

// SetReadError makes ReadSample fail for a family. A nil err clears it.
func (d *Driver) SetReadError(family driver.Family, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.readErr, family)
		return
	}
	d.readErr[family] = err
}

// Reads returns how many times a family has been sampled.
func (d *Driver) Reads(family driver.Family) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads[family]
}

package model

import (
	"errors"
	"math"
)

// BatteryParams defines a battery of known size for the rule-based replay.
// Units:
// - CapacityKWh: kWh
// - PowerKW: kW (charge and discharge limit, bus side)
// - LossRate: fraction of stored energy lost per hour
// - Efficiencies: 0..1
type BatteryParams struct {
	CapacityKWh         float64
	PowerKW             float64
	LossRate            float64
	ChargeEfficiency    float64
	DischargeEfficiency float64
}

// BatteryParamsFor derives replay parameters for a battery of the given
// capacity from the sizing storage parameters.
func BatteryParamsFor(capacityKWh float64, sp StorageParams) BatteryParams {
	return BatteryParams{
		CapacityKWh:         capacityKWh,
		PowerKW:             capacityKWh * sp.PowerToCapacityRatio,
		LossRate:            sp.LossRate,
		ChargeEfficiency:    sp.ChargeEfficiency,
		DischargeEfficiency: sp.DischargeEfficiency,
	}
}

// BatteryState captures mutable state.
type BatteryState struct {
	// SOCKWh is the stored energy.
	SOCKWh float64
}

// Battery is a convenience wrapper bundling params + state.
type Battery struct {
	Params BatteryParams
	State  BatteryState
}

func NewBattery(params BatteryParams, initialSOCKWh float64) (*Battery, error) {
	b := &Battery{
		Params: params,
		State:  BatteryState{SOCKWh: initialSOCKWh},
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Battery) Validate() error {
	p := b.Params
	if p.CapacityKWh < 0 {
		return errors.New("CapacityKWh must be >= 0")
	}
	if p.PowerKW < 0 {
		return errors.New("PowerKW must be >= 0")
	}
	if p.LossRate < 0 || p.LossRate >= 1 {
		return errors.New("LossRate must be in [0, 1)")
	}
	if p.ChargeEfficiency <= 0 || p.ChargeEfficiency > 1 {
		return errors.New("ChargeEfficiency must be in (0, 1]")
	}
	if p.DischargeEfficiency <= 0 || p.DischargeEfficiency > 1 {
		return errors.New("DischargeEfficiency must be in (0, 1]")
	}
	if b.State.SOCKWh < 0 || b.State.SOCKWh > p.CapacityKWh {
		return errors.New("initial SOC must be within [0, CapacityKWh]")
	}
	return nil
}

// Dispatch represents a requested power setpoint for an hour, bus side.
// Convention: positive kW = discharge to the bus, negative kW = charge from the bus.
type Dispatch struct {
	PowerKW float64
}

// IntervalResult captures what happened in one interval.
type IntervalResult struct {
	PowerKW      float64 // realized power (may be clipped)
	ChargeKWh    float64 // energy taken from the bus
	DischargeKWh float64 // energy delivered to the bus
	LossKWh      float64 // self-discharge during the interval
	SOCStart     float64
	SOCEnd       float64
}

// ClipDispatch enforces the power limit, without applying SOC constraints.
func (b *Battery) ClipDispatch(d Dispatch) Dispatch {
	p := d.PowerKW
	if p > b.Params.PowerKW {
		p = b.Params.PowerKW
	}
	if p < -b.Params.PowerKW {
		p = -b.Params.PowerKW
	}
	return Dispatch{PowerKW: p}
}

// ApplyDispatch applies a dispatch for a single interval. Self-discharge is
// applied to the starting SOC first, then the (clipped) charge or discharge:
//
//	soc' = soc*(1-loss) + charge*etaIn - discharge/etaOut
//
// which is the same recurrence the sizing LP uses.
func (b *Battery) ApplyDispatch(d Dispatch, durationHours float64) (IntervalResult, error) {
	if durationHours <= 0 {
		return IntervalResult{}, errors.New("durationHours must be > 0")
	}

	d = b.ClipDispatch(d)
	p := d.PowerKW

	res := IntervalResult{SOCStart: b.State.SOCKWh}

	soc := b.State.SOCKWh * (1 - b.Params.LossRate)
	res.LossKWh = b.State.SOCKWh - soc

	switch {
	case p < 0:
		req := math.Abs(p) * durationHours
		storable := math.Max(0, b.Params.CapacityKWh-soc)
		if limit := storable / b.Params.ChargeEfficiency; req > limit {
			req = limit
			p = -req / durationHours
		}
		soc += req * b.Params.ChargeEfficiency
		res.ChargeKWh = req
	case p > 0:
		req := p * durationHours
		if limit := soc * b.Params.DischargeEfficiency; req > limit {
			req = limit
			p = req / durationHours
		}
		soc -= req / b.Params.DischargeEfficiency
		res.DischargeKWh = req
	}

	// Clamp numeric drift.
	b.State.SOCKWh = math.Min(math.Max(soc, 0), b.Params.CapacityKWh)
	res.PowerKW = p
	res.SOCEnd = b.State.SOCKWh
	return res, nil
}

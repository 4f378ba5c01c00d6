package drive

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/cornercase/internal/control"
)

// Vehicle is the simulated ego vehicle the effective command drives.
type Vehicle interface {
	Apply(cmd control.VehicleCommand, reverse bool) error
	Position() control.Vec3
}

// KinematicVehicle is a bicycle-model stand-in for the simulator, used in
// dev mode and tests.
type KinematicVehicle struct {
	// Wheelbase in metres, MaxSteer in radians at steer=1.
	Wheelbase float64
	MaxSteer  float64
	// Accel and Decel in m/s² at full throttle and full brake.
	Accel float64
	Decel float64
	Drag  float64
	Dt    time.Duration

	mu      sync.Mutex
	pos     control.Vec3
	heading float64
	speed   float64
}

// NewKinematicVehicle returns a car-sized vehicle stepped every dt.
func NewKinematicVehicle(dt time.Duration) *KinematicVehicle {
	return &KinematicVehicle{
		Wheelbase: 2.9,
		MaxSteer:  70 * math.Pi / 180,
		Accel:     3.5,
		Decel:     8,
		Drag:      0.05,
		Dt:        dt,
	}
}

// Apply advances the vehicle by one step under cmd.
func (v *KinematicVehicle) Apply(cmd control.VehicleCommand, reverse bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	dt := v.Dt.Seconds()
	dir := 1.0
	if reverse {
		dir = -1
	}

	speed := math.Abs(v.speed)
	speed += (cmd.Throttle*v.Accel - v.Drag*speed) * dt
	speed -= cmd.Brake * v.Decel * dt
	if speed < 0 {
		speed = 0
	}
	v.speed = dir * speed

	v.heading += v.speed / v.Wheelbase * math.Tan(cmd.Steer*v.MaxSteer*0.5) * dt
	v.pos.X += v.speed * math.Cos(v.heading) * dt
	v.pos.Y += v.speed * math.Sin(v.heading) * dt
	return nil
}

// Position returns the current position.
func (v *KinematicVehicle) Position() control.Vec3 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

// Speed returns the signed speed in m/s.
func (v *KinematicVehicle) Speed() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speed
}

// Package gpio defines the narrow GPIO boundary the core reaches through
// for endstop reads, the e-stop line, and discrete aux outputs. §1 puts
// GPIO/PWM drivers themselves out of scope; this package is only the
// interface boundary, grounded on core/gpio_hal.go's GPIOPin/GPIODriver
// shape.
package gpio

// Pin identifies a single GPIO line, mirroring core/gpio_hal.go's
// GPIOPin uint32.
type Pin uint32

// Driver is the inbound boundary to discrete hardware: endstop and e-stop
// reads, and direct writes for the aux outputs that M64/M65 latch
// immediately rather than synchronising with motion.
type Driver interface {
	ConfigureOutput(p Pin)
	ConfigureInput(p Pin, pullUp bool)
	Set(p Pin, high bool)
	Read(p Pin) bool
}

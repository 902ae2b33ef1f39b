package mcode

// DefaultTable returns a Table with every M-code this module
// recognises already registered.
func DefaultTable() *Table {
	t := NewTable()

	t.Register(0, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.EStop(true)
		return "", nil
	})
	t.Register(999, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.EStop(false)
		return "", nil
	})

	t.Register(3, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetSpindle(true, false, w['S'])
		return "", nil
	})
	t.Register(4, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetSpindle(true, true, w['S'])
		return "", nil
	})
	t.Register(5, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetSpindle(false, false, 0)
		return "", nil
	})

	t.Register(7, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetMist(true)
		return "", nil
	})
	t.Register(8, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetFlood(true)
		return "", nil
	})
	t.Register(9, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetMist(false)
		m.SetFlood(false)
		return "", nil
	})

	t.Register(10, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetVacuum(true)
		return "", nil
	})
	t.Register(11, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetVacuum(false)
		return "", nil
	})

	t.Register(17, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetMotorsEnabled(true)
		return "", nil
	})
	t.Register(18, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetMotorsEnabled(false)
		return "", nil
	})
	t.Register(84, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetMotorsEnabled(false)
		return "", nil
	})

	t.Register(42, func(m Machine, w map[byte]float64, rest string) (string, error) {
		p, err := requireWord(w, 'P')
		if err != nil {
			return "", err
		}
		m.SetAuxBit(uint(p), w['S'] != 0, false)
		return "", nil
	})
	t.Register(62, func(m Machine, w map[byte]float64, rest string) (string, error) {
		p, err := requireWord(w, 'P')
		if err != nil {
			return "", err
		}
		m.SetAuxBit(uint(p), true, false)
		return "", nil
	})
	t.Register(63, func(m Machine, w map[byte]float64, rest string) (string, error) {
		p, err := requireWord(w, 'P')
		if err != nil {
			return "", err
		}
		m.SetAuxBit(uint(p), false, false)
		return "", nil
	})
	t.Register(64, func(m Machine, w map[byte]float64, rest string) (string, error) {
		p, err := requireWord(w, 'P')
		if err != nil {
			return "", err
		}
		m.SetAuxBit(uint(p), true, true)
		return "", nil
	})
	t.Register(65, func(m Machine, w map[byte]float64, rest string) (string, error) {
		p, err := requireWord(w, 'P')
		if err != nil {
			return "", err
		}
		m.SetAuxBit(uint(p), false, true)
		return "", nil
	})

	t.Register(80, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetMachinePower(true)
		return "", nil
	})
	t.Register(81, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.SetMachinePower(false)
		return "", nil
	})

	t.Register(105, func(m Machine, w map[byte]float64, rest string) (string, error) {
		return m.TemperatureReport(), nil
	})
	t.Register(114, func(m Machine, w map[byte]float64, rest string) (string, error) {
		return m.PositionReport(), nil
	})
	t.Register(115, func(m Machine, w map[byte]float64, rest string) (string, error) {
		return m.FirmwareBanner(), nil
	})
	t.Register(117, func(m Machine, w map[byte]float64, rest string) (string, error) {
		m.Echo(rest)
		return "", nil
	})
	t.Register(119, func(m Machine, w map[byte]float64, rest string) (string, error) {
		return m.EndstopReport(), nil
	})

	t.Register(220, func(m Machine, w map[byte]float64, rest string) (string, error) {
		s, err := requireWord(w, 'S')
		if err != nil {
			return "", err
		}
		return "", m.SetSpeedFactor(s)
	})

	return t
}

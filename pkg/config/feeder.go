package config

// StepperConfig holds the motion section of the feeder config.
type StepperConfig struct {
	StepPin      Pin
	DirPin       Pin
	EnablePin    Pin
	MaxSpeed     float64 // steps/s
	Acceleration float64 // steps/s^2
	PulseWidthUS int
	DirSetupUS   int
}

// ScaleConfig holds the load-cell section.
type ScaleConfig struct {
	DTPin             Pin
	SCKPin            Pin
	CalibrationFactor float64
	SampleCount       int
	Gain              int // 128, 64 or 32
}

// ChuteConfig holds the obstruction-sensor section.
type ChuteConfig struct {
	Pin        Pin
	DebounceMS int
}

// MQTTConfig holds the pub/sub transport section.
type MQTTConfig struct {
	Broker        string
	ClientID      string
	CommandTopic  string
	WeightTopic   string
	ResponseTopic string
}

// HTTPConfig holds the embedded console transport section.
type HTTPConfig struct {
	Bind string
}

// FeederConfig is the fully validated device configuration.
type FeederConfig struct {
	DispenseSteps   int
	SettleMS        int
	PublishPeriodMS int
	GPIOChip        string

	Stepper StepperConfig
	Scale   ScaleConfig
	Chute   ChuteConfig

	// Exactly one of MQTT and HTTP is set.
	MQTT *MQTTConfig
	HTTP *HTTPConfig
}

// ParseFeederConfig loads and validates a feeder configuration file.
func ParseFeederConfig(path string) (*FeederConfig, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return feederConfigFromFile(f)
}

// ParseFeederConfigString is ParseFeederConfig for in-memory data.
func ParseFeederConfigString(data string) (*FeederConfig, error) {
	f, err := LoadString(data)
	if err != nil {
		return nil, err
	}
	return feederConfigFromFile(f)
}

func feederConfigFromFile(f *File) (*FeederConfig, error) {
	cfg := &FeederConfig{}

	feeder, err := f.Section("feeder")
	if err != nil {
		return nil, err
	}
	if cfg.DispenseSteps, err = feeder.GetIntMin("dispense_steps", 1); err != nil {
		return nil, err
	}
	if cfg.SettleMS, err = feeder.GetIntMin("settle_ms", 0, 1000); err != nil {
		return nil, err
	}
	if cfg.PublishPeriodMS, err = feeder.GetIntMin("publish_period_ms", 1, 30000); err != nil {
		return nil, err
	}
	if cfg.GPIOChip, err = feeder.Get("gpio_chip", "/dev/gpiochip0"); err != nil {
		return nil, err
	}

	if err := parseStepper(f, &cfg.Stepper); err != nil {
		return nil, err
	}
	if err := parseScale(f, &cfg.Scale); err != nil {
		return nil, err
	}
	if err := parseChute(f, &cfg.Chute); err != nil {
		return nil, err
	}

	hasMQTT := f.HasSection("mqtt")
	hasHTTP := f.HasSection("http")
	switch {
	case hasMQTT && hasHTTP:
		return nil, newError("mqtt", "", "only one of [mqtt] and [http] may be configured")
	case hasMQTT:
		if cfg.MQTT, err = parseMQTT(f); err != nil {
			return nil, err
		}
	case hasHTTP:
		if cfg.HTTP, err = parseHTTP(f); err != nil {
			return nil, err
		}
	default:
		return nil, newError("", "", "one of [mqtt] or [http] must be configured")
	}

	return cfg, nil
}

func parseStepper(f *File, out *StepperConfig) error {
	s, err := f.Section("stepper")
	if err != nil {
		return err
	}
	outPin := PinOptions{CanInvert: false, CanPullup: false}
	if out.StepPin, err = s.GetPin("step_pin", outPin); err != nil {
		return err
	}
	if out.DirPin, err = s.GetPin("dir_pin", outPin); err != nil {
		return err
	}
	if out.EnablePin, err = s.GetPin("enable_pin", outPin); err != nil {
		return err
	}
	if out.MaxSpeed, err = s.GetFloatAbove("max_speed", 0); err != nil {
		return err
	}
	if out.Acceleration, err = s.GetFloatAbove("acceleration", 0); err != nil {
		return err
	}
	if out.PulseWidthUS, err = s.GetIntMin("pulse_width_us", 1, 2); err != nil {
		return err
	}
	if out.DirSetupUS, err = s.GetIntMin("dir_setup_us", 1, 2); err != nil {
		return err
	}
	return nil
}

func parseScale(f *File, out *ScaleConfig) error {
	s, err := f.Section("scale")
	if err != nil {
		return err
	}
	if out.DTPin, err = s.GetPin("dt_pin", PinOptions{CanPullup: true}); err != nil {
		return err
	}
	if out.SCKPin, err = s.GetPin("sck_pin", PinOptions{}); err != nil {
		return err
	}
	if out.CalibrationFactor, err = s.GetFloat("calibration_factor"); err != nil {
		return err
	}
	if out.CalibrationFactor == 0 {
		return newError("scale", "calibration_factor", "must be non-zero")
	}
	if out.SampleCount, err = s.GetIntMin("sample_count", 1, 10); err != nil {
		return err
	}
	if out.Gain, err = s.GetInt("gain", 128); err != nil {
		return err
	}
	switch out.Gain {
	case 128, 64, 32:
	default:
		return newError("scale", "gain", "must be one of 128, 64, 32")
	}
	return nil
}

func parseChute(f *File, out *ChuteConfig) error {
	s, err := f.Section("chute")
	if err != nil {
		return err
	}
	if out.Pin, err = s.GetPin("pin", PinOptions{CanInvert: true, CanPullup: true}); err != nil {
		return err
	}
	if out.DebounceMS, err = s.GetIntMin("debounce_ms", 0, 20); err != nil {
		return err
	}
	return nil
}

func parseMQTT(f *File) (*MQTTConfig, error) {
	s, err := f.Section("mqtt")
	if err != nil {
		return nil, err
	}
	out := &MQTTConfig{}
	if out.Broker, err = s.Get("broker"); err != nil {
		return nil, err
	}
	if out.ClientID, err = s.Get("client_id", "smartfeeder"); err != nil {
		return nil, err
	}
	if out.CommandTopic, err = s.Get("command_topic"); err != nil {
		return nil, err
	}
	if out.WeightTopic, err = s.Get("weight_topic"); err != nil {
		return nil, err
	}
	if out.ResponseTopic, err = s.Get("response_topic", out.CommandTopic+"/response"); err != nil {
		return nil, err
	}
	return out, nil
}

func parseHTTP(f *File) (*HTTPConfig, error) {
	s, err := f.Section("http")
	if err != nil {
		return nil, err
	}
	out := &HTTPConfig{}
	if out.Bind, err = s.Get("bind", ":8080"); err != nil {
		return nil, err
	}
	return out, nil
}

package config

import (
	"fmt"

	"buildd/internal/faults"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateExpiration(); err != nil {
		return err
	}
	if err := c.validateMemoryCheck(); err != nil {
		return err
	}
	return nil
}

type namedInt struct {
	name  string
	value int
}

func (c *Config) validateExpiration() error {
	if err := ensurePositive(
		namedInt{"expiration.poll_interval_seconds", c.Expiration.PollIntervalSeconds},
		namedInt{"expiration.check_timeout_seconds", c.Expiration.CheckTimeoutSeconds},
		namedInt{"expiration.consecutive_triggers", c.Expiration.ConsecutiveTriggers},
	); err != nil {
		return err
	}
	if c.Expiration.CheckTimeoutSeconds > c.Expiration.PollIntervalSeconds {
		return invalid("expiration.check_timeout_seconds must not exceed expiration.poll_interval_seconds")
	}
	return nil
}

func (c *Config) validateMemoryCheck() error {
	mem := c.Expiration.Memory
	if !mem.Enabled {
		return nil
	}
	if mem.MinFreeFraction < 0 || mem.MinFreeFraction > 1 {
		return invalid("expiration.memory.min_free_fraction must be between 0 and 1")
	}
	if mem.MinFreeBytes < 0 {
		return invalid("expiration.memory.min_free_bytes must be >= 0")
	}
	if mem.MinThresholdBytes < 0 || mem.MaxThresholdBytes < 0 {
		return invalid("expiration.memory threshold bounds must be >= 0")
	}
	if mem.MinThresholdBytes > mem.MaxThresholdBytes {
		return invalid(fmt.Sprintf("expiration.memory.min_threshold_bytes (%d) must not exceed max_threshold_bytes (%d)",
			mem.MinThresholdBytes, mem.MaxThresholdBytes))
	}
	return nil
}

// ensurePositive reports the first non-positive value in argument order.
func ensurePositive(values ...namedInt) error {
	for _, v := range values {
		if v.value <= 0 {
			return invalid(v.name + " must be positive")
		}
	}
	return nil
}

func invalid(message string) error {
	return faults.Wrap(faults.ErrConfiguration, "config", "validate", message, nil)
}

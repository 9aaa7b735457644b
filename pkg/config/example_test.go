package config_test

import (
	"fmt"
	"log"

	"github.com/heraldhq/herald/pkg/config"
)

// ExampleNewChannelConfig demonstrates creating a new channel
// configuration with default values.
func ExampleNewChannelConfig() {
	cfg := config.NewChannelConfig("twilio", "sms")

	fmt.Printf("Provider: %s\n", cfg.Provider)
	fmt.Printf("Metrics: %v\n", cfg.Observability.EnableMetrics)
	fmt.Printf("Log Level: %s\n", cfg.Observability.LogLevel)
	fmt.Printf("Rate Limited: %v\n", cfg.Dispatch.IsRateLimited())

	// Output:
	// Provider: twilio
	// Metrics: true
	// Log Level: info
	// Rate Limited: false
}

// ExampleChannelConfig_Validate shows how to validate a configuration
// before using it.
func ExampleChannelConfig_Validate() {
	cfg := config.NewChannelConfig("twilio", "sms")

	cfg.Name = "orders-sms"
	cfg.Dispatch.Workers = 8
	cfg.Dispatch.RateLimitPerSec = 50
	cfg.Settings["AccountSid"] = "AC123"

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	// Output:
	// Configuration is valid!
}

// ExampleLoadChannelConfig demonstrates loading a channel document from
// a YAML file with environment variable substitution.
func ExampleLoadChannelConfig() {
	// In practice, you would load from a file:
	//
	//	cc, err := config.LoadChannelConfig("twilio-sms.yaml")
	//	if err != nil {
	//	    log.Fatal(err)
	//	}
	//
	// where twilio-sms.yaml uses ${VAR} substitution:
	//
	//	provider: twilio
	//	channel_type: sms
	//	settings:
	//	  AccountSid: ${TWILIO_ACCOUNT_SID}
	//	  Region: ${TWILIO_REGION:-us1}

	// For this example, we'll create one manually.
	cc := config.NewChannelConfig("twilio", "sms")
	cc.Settings["Region"] = "us1"

	fmt.Printf("Identity: %s/%s\n", cc.Provider, cc.ChannelType)
	fmt.Printf("Region: %s\n", cc.Settings["Region"])

	// Output:
	// Identity: twilio/sms
	// Region: us1
}

// Package config provides the configuration documents for Herald channel
// connectors.
//
// # Key Features
//
// - ChannelConfig: per-connector document covering identity, settings,
// dispatch tuning, and observability
// - Config: top-level document mapping instance names to channels
// - Environment variable substitution with ${VAR} and ${VAR:-default} syntax
// - Automatic defaults and validation
//
// # Usage
//
// ## Loading a channel document
//
//	cc, err := config.LoadChannelConfig("twilio-sms.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// ## Creating configurations programmatically
//
//	cc := config.NewChannelConfig("twilio", "sms")
//	cc.Settings["AccountSid"] = "AC123"
//	cc.Dispatch.Workers = 8
//
//	if err := cc.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// ## Environment variable substitution
//
//	# twilio-sms.yaml
//	provider: twilio
//	channel_type: sms
//	settings:
//	  AccountSid: ${TWILIO_ACCOUNT_SID}
//	  AuthToken: ${TWILIO_AUTH_TOKEN}
//	  Region: ${TWILIO_REGION:-us1}
//
// Settings values are not validated by this package; the channel schema
// performs type, allowed-value, and required checks when the values are
// loaded into a settings store.
package config

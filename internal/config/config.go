package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable. Provider URLs and credentials are loaded
// once at startup and handed to the adapter constructors; nothing reads
// the environment again after Load returns.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret string // secret used to verify payment-callback tokens

	BookingServiceURL  string // base URL of the external timeslot booking service
	BookingServiceAuth string // static basic-auth credential for the booking service

	AuthModuleURL       string // token endpoint of the payment auth module
	AuthModuleGrantType string // grant_type submitted to the auth module
	AuthModuleBasicAuth string // basic-auth credential for the auth module

	GCashSourceURL  string // GCash source (checkout) creation endpoint
	GCashPaymentURL string // GCash payment confirmation endpoint
	MayaPaymentURL  string // Maya payment-intent creation endpoint
	MayaResolveURL  string // Maya payment-intent status endpoint

	SMSAPIURL string // SMS gateway endpoint
	SMSAPIKey string // SMS gateway access key

	RabbitURL string // AMQP broker URL; empty disables event publishing
}

// Load reads configuration values from environment variables and
// returns a Config. Required variables are enforced by must() and a
// missing value causes the program to exit with a fatal log message, so
// a misconfigured deployment fails at startup rather than mid-flow.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret: must("JWT_SECRET"),

		BookingServiceURL:  must("BOOKING_SERVICE_URL"),
		BookingServiceAuth: must("BOOKING_SERVICE_AUTH"),

		AuthModuleURL:       must("AUTHMODULE_URL"),
		AuthModuleGrantType: must("AUTHMODULE_GRANT_TYPE"),
		AuthModuleBasicAuth: must("AUTHMODULE_AUTHORIZATION"),

		GCashSourceURL:  must("GCASH_SOURCE_URL"),
		GCashPaymentURL: must("GCASH_PAYMENT_URL"),
		MayaPaymentURL:  must("MAYA_PAYMENT_URL"),
		MayaResolveURL:  must("MAYA_GET_PAYMENT_URL"),

		SMSAPIURL: must("SMS_API_URL"),
		SMSAPIKey: must("SMS_API_KEY"),

		RabbitURL: os.Getenv("RABBITMQ_URL"), // optional; events off when empty
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

type (
	Config struct {
		AMQP        AMQP
		Exchange    Exchange
		Queue       Queue
		Consumption Consumption
		Imbo        Imbo
		Detection   Detection
		Log         Log
		HealthCheck HealthCheck
	}

	AMQP struct {
		Host     string `env:"AMQP_HOST" envDefault:"localhost"`
		Port     int    `env:"AMQP_PORT" envDefault:"5672"`
		User     string `env:"AMQP_USER" envDefault:"guest"`
		Password string `env:"AMQP_PASSWORD" envDefault:"guest"`
		VHost    string `env:"AMQP_VHOST" envDefault:"/"`
	}

	Exchange struct {
		Name       string `env:"EXCHANGE_NAME" envDefault:"imbo"`
		Kind       string `env:"EXCHANGE_KIND" envDefault:"fanout"`
		Durable    bool   `env:"EXCHANGE_DURABLE" envDefault:"false"`
		AutoDelete bool   `env:"EXCHANGE_AUTO_DELETE" envDefault:"false"`
	}

	Queue struct {
		// Name left blank lets the broker generate an exclusive queue name.
		Name       string `env:"QUEUE_NAME" envDefault:""`
		Exclusive  bool   `env:"QUEUE_EXCLUSIVE" envDefault:"true"`
		RoutingKey string `env:"QUEUE_ROUTING_KEY" envDefault:""`
	}

	Consumption struct {
		// NoAck true means at-most-once: the broker never redelivers.
		NoAck           bool          `env:"CONSUMPTION_NO_ACK" envDefault:"true"`
		ShutdownTimeout time.Duration `env:"CONSUMPTION_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	}

	Imbo struct {
		Host       string   `env:"IMBO_HOST" envDefault:"http://localhost"`
		Port       int      `env:"IMBO_PORT" envDefault:"80"`
		PublicKey  string   `env:"IMBO_PUBLIC_KEY,required,notEmpty"`
		PrivateKey string   `env:"IMBO_PRIVATE_KEY,required,notEmpty"`
		Events     []string `env:"EVENTS" envDefault:"images.post"`
	}

	Detection struct {
		ImageWidth int    `env:"DETECTION_IMAGE_WIDTH" envDefault:"1024"`
		Cascade    string `env:"DETECTION_CASCADE" envDefault:"./data/facefinder"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL" envDefault:"info"`
	}

	HealthCheck struct {
		Port string `env:"HEALTH_CHECK_PORT" envDefault:"8080"`
	}
)

// URL assembles the AMQP connection descriptor from the individual fields.
func (a AMQP) URL() string {
	path := "/"
	if a.VHost != "/" {
		path += a.VHost
	}

	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(a.User, a.Password),
		Host:   fmt.Sprintf("%s:%d", a.Host, a.Port),
		Path:   path,
	}

	return u.String()
}

// BaseURL assembles the image store's base URL.
func (i Imbo) BaseURL() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}

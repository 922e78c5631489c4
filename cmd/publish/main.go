// Command publish fetches an image's details from the image store and
// publishes a synthetic upload event for it, for exercising the consumer
// end to end.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/imageflow/facepoi/config"
	"github.com/imageflow/facepoi/internal/entity"
	"github.com/imageflow/facepoi/internal/repo/webapi"
	"github.com/imageflow/facepoi/pkg/rabbitmq/publisher"
)

func newRootCmd() *cobra.Command {
	var (
		user       string
		identifier string
		event      string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an image-uploaded event to the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			return publish(cmd.Context(), cfg, user, identifier, event)
		},
	}

	cmd.Flags().StringVar(&user, "user", "user", "image owner")
	cmd.Flags().StringVar(&identifier, "identifier", "", "image identifier")
	cmd.Flags().StringVar(&event, "event", "images.post", "event name to publish")

	cobra.CheckErr(cmd.MarkFlagRequired("identifier"))

	return cmd
}

func publish(ctx context.Context, cfg *config.Config, user, identifier, event string) error {
	store := webapi.New(cfg.Imbo.BaseURL(), cfg.Imbo.PublicKey, cfg.Imbo.PrivateKey)

	image, err := store.ImageDetails(ctx, user, identifier)
	if err != nil {
		return fmt.Errorf("image details: %w", err)
	}

	body, err := json.Marshal(entity.UploadEvent{
		EventName: event,
		Image:     image,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub, err := publisher.New(cfg.AMQP.URL())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pub.Close()

	err = pub.EnsureExchange(cfg.Exchange.Name, cfg.Exchange.Kind, cfg.Exchange.Durable, cfg.Exchange.AutoDelete)
	if err != nil {
		return fmt.Errorf("ensure exchange: %w", err)
	}

	err = pub.Publish(ctx, cfg.Exchange.Name, cfg.Queue.RoutingKey, body, uuid.NewString())
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	fmt.Printf("published `%s` for image `%s/%s`\n", event, user, identifier)

	return nil
}

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("config error: %s", err)
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

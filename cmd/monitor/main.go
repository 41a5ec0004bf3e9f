// Console monitor: tails the check-in topic and prints each attendee as they
// arrive. Meant for dashboards or operators outside the service process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-checkin/internal/config"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.AttendeeCheckedIn, cfg.Kafka.GroupID+"-monitor")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	log.Info("MONITOR", fmt.Sprintf("Tailing topic %s", cfg.Kafka.Topics.AttendeeCheckedIn))
	consumer.Start(ctx, func(event models.CheckInEvent) {
		who := event.AttendeeName
		if event.Church != "" {
			who = fmt.Sprintf("%s (%s)", who, event.Church)
		}
		log.Info("MONITOR", fmt.Sprintf("%s checked in %s[%d] via %s at %s",
			who, event.RegistrationID, event.AttendeeIndex, event.Method,
			event.Timestamp.Format("15:04:05")))
	})

	log.Info("MONITOR", "Shutdown complete")
}

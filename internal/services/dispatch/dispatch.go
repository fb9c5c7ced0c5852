// Package dispatch строит список получателей уведомлений об изменениях
// и ставит персональные письма в очередь отправки.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kosttiik/subscription-notifier/internal/lib/token"
	"github.com/kosttiik/subscription-notifier/internal/models"
)

// SubscriberSource отдает активные подписки для рассылки.
type SubscriberSource interface {
	ListActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error)
}

// Publisher публикует задания на отправку писем в очередь.
type Publisher interface {
	Publish(message any) error
}

// Delivery — одно письмо одному получателю с посчитанной для него сводкой.
type Delivery struct {
	Subscription *models.Subscription
	Stats        models.ChangeStats
}

// Outcome — результат постановки письма в очередь для одного получателя.
type Outcome struct {
	SubscriptionID string
	EmailHash      string
	Err            error
}

// Report — итог прогона рассылки.
type Report struct {
	Recipients int
	Published  int
	Failed     int
	Outcomes   []Outcome
}

// Service рассылает уведомления об изменениях активным подписчикам.
type Service struct {
	source    SubscriberSource
	publisher Publisher
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(source SubscriberSource, publisher Publisher, log *slog.Logger) *Service {
	return &Service{
		source:    source,
		publisher: publisher,
		log:       log,
	}
}

// BuildDeliveries вычисляет получателей снимка изменений. Подписчики типа all
// получают общую сводку, filtered — только при непустом пересечении их выбора
// сервисов с сервисами снимка, со сводкой, пересчитанной по их выбору.
// Если у одного email есть и all-, и filtered-подписка, побеждает filtered:
// письмо отражает более узкий персональный срез.
func BuildDeliveries(payload *models.ChangePayload, subs []*models.Subscription) []Delivery {
	changedServices := make(map[string]struct{}, len(payload.Changes))
	for _, c := range payload.Changes {
		if c.Service != "" {
			changedServices[c.Service] = struct{}{}
		}
	}

	globalStats := scopedStats(payload, nil)
	if payload.RegionalBreakdown != nil {
		globalStats = *payload.RegionalBreakdown
	}

	byEmail := make(map[string]Delivery)
	order := make([]string, 0, len(subs))
	for _, sub := range subs {
		if sub.Status != models.SubscriptionStatusActive {
			continue
		}

		var delivery Delivery
		switch sub.Type {
		case models.SubscriptionTypeAll:
			delivery = Delivery{Subscription: sub, Stats: globalStats}
		case models.SubscriptionTypeFiltered:
			selected := intersect(sub.SelectedServices, changedServices)
			if len(selected) == 0 {
				continue
			}
			delivery = Delivery{Subscription: sub, Stats: scopedStats(payload, selected)}
		default:
			continue
		}

		prev, seen := byEmail[sub.Email]
		if !seen {
			order = append(order, sub.Email)
		}
		// filtered-контекст имеет приоритет над all для одного адреса
		if seen && prev.Subscription.Type == models.SubscriptionTypeFiltered {
			continue
		}
		byEmail[sub.Email] = delivery
	}

	deliveries := make([]Delivery, 0, len(byEmail))
	for _, email := range order {
		deliveries = append(deliveries, byEmail[email])
	}
	return deliveries
}

// scopedStats считает сводку снимка. При непустом selected учитываются
// только изменения выбранных сервисов.
func scopedStats(payload *models.ChangePayload, selected map[string]struct{}) models.ChangeStats {
	services := make(map[string]struct{})
	regions := make(map[string]struct{})
	var stats models.ChangeStats

	for _, c := range payload.Changes {
		if selected != nil {
			if _, ok := selected[c.Service]; !ok {
				continue
			}
		}
		if c.Service != "" {
			services[c.Service] = struct{}{}
		}
		if c.Region != "" {
			regions[c.Region] = struct{}{}
		}
		stats.Added += c.Added()
		stats.Removed += c.Removed()
	}

	stats.ServicesChanged = len(services)
	stats.Regions = len(regions)
	return stats
}

func intersect(selection []string, changed map[string]struct{}) map[string]struct{} {
	result := make(map[string]struct{})
	for _, svc := range selection {
		if _, ok := changed[svc]; ok {
			result[svc] = struct{}{}
		}
	}
	return result
}

// Dispatch ставит по одному письму в очередь каждому получателю снимка.
// Ошибка публикации для одного получателя не прерывает рассылку остальным.
func (s *Service) Dispatch(ctx context.Context, payload *models.ChangePayload) (*Report, error) {
	const op = "services.dispatch.Dispatch"

	subs, err := s.source.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	deliveries := BuildDeliveries(payload, subs)
	report := &Report{Recipients: len(deliveries)}

	for _, d := range deliveries {
		stats := d.Stats
		job := models.EmailJob{
			Kind:             models.EmailKindChangeAlert,
			Email:            d.Subscription.Email,
			SubscriptionID:   d.Subscription.ID,
			UnsubscribeToken: d.Subscription.UnsubscribeToken,
			SubscriptionType: d.Subscription.Type,
			Stats:            &stats,
			Date:             payload.Date,
		}

		outcome := Outcome{
			SubscriptionID: d.Subscription.ID,
			EmailHash:      token.HashEmail(d.Subscription.Email),
		}
		if err := s.publisher.Publish(job); err != nil {
			outcome.Err = err
			report.Failed++
			s.log.Error("failed to publish change notification",
				slog.String("subscription_id", d.Subscription.ID), slog.Any("err", err))
		} else {
			report.Published++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	s.log.Info("dispatch finished",
		slog.Int("recipients", report.Recipients),
		slog.Int("published", report.Published),
		slog.Int("failed", report.Failed))
	return report, nil
}

package models

// ChangePayload — снимок изменений из внешнего фида обнаружения изменений.
// Структура повторяет формат latest-changes.json: набор изменённых сервисов
// с опциональной региональной разбивкой, посчитанной на стороне фида.
type ChangePayload struct {
	Timestamp string        `json:"timestamp"`
	Date      string        `json:"date,omitempty"`
	Changes   []ChangedItem `json:"changes"`
	// RegionalBreakdown — предрассчитанная сводка по всему снимку.
	// Когда она есть, получатели типа all используют её вместо пересчёта.
	RegionalBreakdown *ChangeStats `json:"regional_breakdown,omitempty"`
}

// ChangedItem — одно изменение сервиса в снимке.
type ChangedItem struct {
	Service         string   `json:"service"`
	Region          string   `json:"region,omitempty"`
	AddedCount      int      `json:"added_count,omitempty"`
	RemovedCount    int      `json:"removed_count,omitempty"`
	AddedPrefixes   []string `json:"added_prefixes,omitempty"`
	RemovedPrefixes []string `json:"removed_prefixes,omitempty"`
}

// Added возвращает число добавленных префиксов: явный счётчик,
// либо длину списка, если счётчик не передан.
func (c ChangedItem) Added() int {
	if c.AddedCount > 0 {
		return c.AddedCount
	}
	return len(c.AddedPrefixes)
}

// Removed возвращает число удалённых префиксов аналогично Added.
func (c ChangedItem) Removed() int {
	if c.RemovedCount > 0 {
		return c.RemovedCount
	}
	return len(c.RemovedPrefixes)
}

// ChangeStats — сводка изменений, вычисляемая для конкретного получателя.
// Для подписки типа filtered пересчитывается по выбранным сервисам.
type ChangeStats struct {
	ServicesChanged int `json:"services_changed"`
	Regions         int `json:"regions"`
	Added           int `json:"added"`
	Removed         int `json:"removed"`
}

package storage

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"

	"github.com/skalibog/marketpipe/pkg/models"
)

func pointTags(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func pointFields(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestBarPoint(t *testing.T) {
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := barPoint(models.MarketBar{
		Symbol: "BTCUSDT", Interval: "1h", Timestamp: ts,
		Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10,
		Source: "binance", QualityScore: 95,
	})

	assert.Equal(t, "bars", p.Name())
	assert.Equal(t, ts, p.Time())
	assert.Equal(t, map[string]string{"symbol": "BTCUSDT", "interval": "1h"}, pointTags(p))

	fields := pointFields(p)
	assert.Equal(t, 1.5, fields["close"])
	assert.Equal(t, "binance", fields["source"])
	assert.Equal(t, int64(95), fields["quality"])
}

func TestSignalPoint(t *testing.T) {
	p := signalPoint(&models.Signal{
		ID: "abc", Type: models.SignalSell, Symbol: "ETHUSDT",
		Quantity: 1, Price: 3500, Reason: "SMA Death Cross",
	})

	assert.Equal(t, "signals", p.Name())
	assert.Equal(t, map[string]string{"symbol": "ETHUSDT"}, pointTags(p))
	fields := pointFields(p)
	assert.Equal(t, "sell", fields["type"])
	assert.Equal(t, "SMA Death Cross", fields["reason"])
}

func TestQualityPoint(t *testing.T) {
	p := qualityPoint("BTCUSDT", "1m", models.QualitySummary{
		TotalRecords:        10,
		ValidRecords:        8,
		AverageQualityScore: 92.5,
		ErrorSummary:        map[string]int{"Invalid volume": 2},
	}, time.Now())

	fields := pointFields(p)
	assert.Equal(t, int64(10), fields["total"])
	assert.Equal(t, int64(8), fields["valid"])
	assert.Equal(t, 92.5, fields["average_score"])
	assert.Equal(t, int64(1), fields["errors"])
	assert.Equal(t, int64(0), fields["warnings"])
}

func TestReverseBars(t *testing.T) {
	bars := []models.MarketBar{{Close: 3}, {Close: 2}, {Close: 1}}
	reverseBars(bars)
	assert.Equal(t, []float64{1, 2, 3}, []float64{bars[0].Close, bars[1].Close, bars[2].Close})
}

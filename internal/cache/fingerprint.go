package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"

	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

// ThresholdFingerprint identifies the baselines built from records with window.
func ThresholdFingerprint(records []domain.DailyRecord, window int) string {
	return fingerprint(records, fmt.Sprintf("thresholds|window=%d", window))
}

// IndicatorFingerprint identifies the indicator table built from records under p.
func IndicatorFingerprint(records []domain.DailyRecord, p domain.EventProfile) string {
	return fingerprint(records, fmt.Sprintf("indicators|event=%s|delta=%g|days=%d|window=%d|spi=%t",
		p.Name, p.DeltaParam, p.DaysParam, p.RollingWindow, p.SPI))
}

func fingerprint(records []domain.DailyRecord, header string) string {
	h := sha256.New()
	h.Write([]byte(header))
	var buf [8]byte
	for i := range records {
		r := &records[i]
		writeFloat(h, buf[:], r.Lon)
		writeFloat(h, buf[:], r.Lat)
		binary.LittleEndian.PutUint64(buf[:], uint64(r.Date.Unix()))
		h.Write(buf[:])
		writeFloat(h, buf[:], r.Value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeFloat(h hash.Hash, buf []byte, v float64) {
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	h.Write(buf)
}

package scoring

import (
	"encoding/binary"
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

// Fingerprint identifies everything a result depends on: the scoring input,
// the scheme, the primary policy, the loaded reference tables and, for OASIS,
// the probability model coefficients. Any change
// to one of them yields a different value, so cached results keyed by it are
// never served for changed inputs.
func (e *Engine) Fingerprint(input models.ScoringInput, scheme models.SchemeID, policy PrimaryPolicy) string {
	h := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], e.digest)
	_, _ = h.Write(buf[:])
	_, _ = h.WriteString(string(scheme))
	_, _ = h.WriteString(strconv.FormatBool(policy.ExcludeBySeqNum))
	_, _ = h.WriteString(strconv.Itoa(policy.seqNum()))
	if scheme == models.SchemeOASIS {
		w := e.oasis.Coefficients()
		_, _ = h.WriteString(strconv.FormatFloat(w.Bias, 'g', -1, 64))
		for _, c := range w.Coefficients {
			_, _ = h.WriteString(strconv.FormatFloat(c, 'g', -1, 64))
		}
	}
	// Struct fields and map keys marshal in a fixed order.
	_ = json.NewEncoder(h).Encode(input)
	return strconv.FormatUint(h.Sum64(), 16)
}

// catalogDigest covers everything in the catalog that can change a result.
func catalogDigest(catalog *terminology.Catalog) uint64 {
	h := xxhash.New()
	put := func(fields ...string) {
		for _, f := range fields {
			_, _ = h.WriteString(f)
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte{'\n'})
	}
	for _, s := range catalog.Schemes() {
		put("scheme", string(s.ID), string(s.Window), strconv.Itoa(s.LookbackYears), strconv.FormatBool(s.PrimaryExclusion))
		for _, c := range s.Categories() {
			w, _ := s.Weight(c)
			put("category", string(c), strconv.FormatInt(int64(w), 10))
		}
		for _, o := range s.Overrides() {
			put("override", string(o.Dominant), string(o.Dominated))
		}
		for _, b := range s.AgeBands {
			put("age", optFloat(b.Min), optFloat(b.Max), strconv.FormatFloat(b.Points, 'g', -1, 64))
		}
		for _, b := range s.RiskBands {
			put("risk", b.Label, optFloat(b.Min), strconv.FormatBool(b.MinExclusive), optFloat(b.Max), strconv.FormatBool(b.MaxExclusive))
		}
		for _, v := range s.Versions() {
			t, _ := s.Table(v)
			put("table", v.Key(), t.Source, string(t.Confidence))
			for _, r := range t.Rules() {
				fields := []string{"rule", r.Prefix, string(r.Category)}
				for _, a := range r.Also {
					fields = append(fields, string(a))
				}
				put(fields...)
			}
		}
	}
	return h.Sum64()
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

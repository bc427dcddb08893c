package custody

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/key-custody/envelope"
	"github.com/ruteri/key-custody/interfaces"
	"github.com/ruteri/key-custody/seal"
)

// BenchmarkResult holds the stage timings of one round trip.
type BenchmarkResult struct {
	Cost    interfaces.CostProfile
	Encrypt time.Duration
	Seal    time.Duration
	Open    time.Duration
	Decrypt time.Duration
}

// Total is the sum of all stages.
func (r BenchmarkResult) Total() time.Duration {
	return r.Encrypt + r.Seal + r.Open + r.Decrypt
}

// BenchmarkReport is the result of Benchmark, one row per cost.
type BenchmarkReport struct {
	Results []BenchmarkResult
}

// Render writes the report as an aligned table.
func (r BenchmarkReport) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "cost\tN\tencrypt\tseal\topen\tdecrypt\ttotal\t")
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			int(res.Cost), res.Cost.N(),
			formatSeconds(res.Encrypt), formatSeconds(res.Seal),
			formatSeconds(res.Open), formatSeconds(res.Decrypt),
			formatSeconds(res.Total()))
	}
	return tw.Flush()
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// DefaultBenchmarkCosts returns exponents 14 through 22.
func DefaultBenchmarkCosts() []interfaces.CostProfile {
	costs, _ := CostRange(14, 22)
	return costs
}

// CostRange returns every cost from..to inclusive.
func CostRange(from, to int) ([]interfaces.CostProfile, error) {
	if from > to {
		return nil, fmt.Errorf("%w: empty cost range %d..%d", interfaces.ErrInput, from, to)
	}

	var costs []interfaces.CostProfile
	for n := from; n <= to; n++ {
		cost := interfaces.CostProfile(n)
		if err := cost.Validate(); err != nil {
			return nil, err
		}
		costs = append(costs, cost)
	}
	return costs, nil
}

// Benchmark times a full setup and load round trip for each cost on a throwaway key,
// under an ephemeral sealer. The credential store is never touched.
func Benchmark(costs []interfaces.CostProfile, log *slog.Logger) (BenchmarkReport, error) {
	if log == nil {
		log = slog.Default()
	}

	sealer, err := seal.NewEphemeralSealer()
	if err != nil {
		return BenchmarkReport{}, err
	}
	defer sealer.Close()

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return BenchmarkReport{}, fmt.Errorf("failed to generate benchmark key: %w", err)
	}
	secret := interfaces.RawSecret(crypto.FromECDSA(privateKey))
	defer secret.Wipe()
	ZeroKey(privateKey)

	password := make([]byte, 16)
	if _, err := rand.Read(password); err != nil {
		return BenchmarkReport{}, fmt.Errorf("failed to generate benchmark password: %w", err)
	}
	defer memguard.WipeBytes(password)

	report := BenchmarkReport{}
	for _, cost := range costs {
		res, err := benchmarkOne(sealer, secret, password, cost)
		if err != nil {
			return report, fmt.Errorf("benchmark at cost %s: %w", cost, err)
		}
		log.Debug("Benchmarked cost",
			slog.Int("cost", int(cost)),
			slog.Duration("total", res.Total()))
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func benchmarkOne(sealer *seal.Sealer, secret interfaces.RawSecret, password []byte, cost interfaces.CostProfile) (BenchmarkResult, error) {
	res := BenchmarkResult{Cost: cost}

	start := time.Now()
	env, err := envelope.Encrypt(secret, password, cost)
	if err != nil {
		return res, err
	}
	res.Encrypt = time.Since(start)

	start = time.Now()
	sealed, err := sealer.Seal(env.Marshal())
	if err != nil {
		return res, err
	}
	res.Seal = time.Since(start)

	start = time.Now()
	opened, err := sealer.Open(sealed)
	if err != nil {
		return res, err
	}
	parsed, err := envelope.Parse(opened)
	memguard.WipeBytes(opened)
	if err != nil {
		return res, err
	}
	res.Open = time.Since(start)

	start = time.Now()
	recovered, err := envelope.Decrypt(parsed, password)
	if err != nil {
		return res, err
	}
	res.Decrypt = time.Since(start)
	defer recovered.Wipe()

	if subtle.ConstantTimeCompare(recovered, secret) != 1 {
		return res, fmt.Errorf("%w: round trip returned a different key", interfaces.ErrVerification)
	}
	return res, nil
}

package decision

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CorrelationMatrix 无序币对 → 皮尔逊相关系数[-1,1]
// 每周期构建一次，建完只读，无需加锁
type CorrelationMatrix map[string]float64

// PairKey 无序币对键（按字典序拼接，保证(A,B)和(B,A)同键）
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Get 查询币对相关系数；没有数据时返回0（视为不相关）
func (m CorrelationMatrix) Get(a, b string) float64 {
	if m == nil {
		return 0
	}
	return m[PairKey(a, b)]
}

// BuildCorrelationMatrix 用各币种最近收盘价序列计算两两收益率相关性
// 单币种场景直接跳过（没有对可算）
func BuildCorrelationMatrix(closes map[string][]float64) CorrelationMatrix {
	if len(closes) < 2 {
		return nil
	}

	symbols := make([]string, 0, len(closes))
	returns := make(map[string][]float64, len(closes))
	for sym, series := range closes {
		r := toReturns(series)
		if len(r) < 10 {
			continue // 样本太少，算出来的相关性是噪声
		}
		symbols = append(symbols, sym)
		returns[sym] = r
	}
	if len(symbols) < 2 {
		return nil
	}
	sort.Strings(symbols)

	matrix := make(CorrelationMatrix)
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			x, y := alignTails(returns[symbols[i]], returns[symbols[j]])
			matrix[PairKey(symbols[i], symbols[j])] = stat.Correlation(x, y, nil)
		}
	}
	return matrix
}

// toReturns 收盘价 → 简单收益率
func toReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

// alignTails 截齐两个序列的尾部（最新的n个点对齐）
func alignTails(x, y []float64) ([]float64, []float64) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	return x[len(x)-n:], y[len(y)-n:]
}

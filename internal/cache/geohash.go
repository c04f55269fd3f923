// 文档注释：轻量 geohash 编码（base32）
// 背景：作为坐标缓存键使用；7 字符约 150m 粒度，边界附近的点可能与邻近点共享键，
// 这是缓存层的近似取舍，不影响守恒计数。
// 约束：仅用于缓存键构造，不做行政区映射。
package cache

var base32 = []rune("0123456789bcdefghjkmnpqrstuvwxyz")

func Geohash(lat, lon float64, precision int) string {
	latInt := []float64{-90, 90}
	lonInt := []float64{-180, 180}
	bits := []int{16, 8, 4, 2, 1}
	bit := 0
	ch := 0
	even := true
	out := make([]rune, 0, precision)
	for len(out) < precision {
		if even {
			mid := (lonInt[0] + lonInt[1]) / 2
			if lon >= mid {
				ch |= bits[bit]
				lonInt[0] = mid
			} else {
				lonInt[1] = mid
			}
		} else {
			mid := (latInt[0] + latInt[1]) / 2
			if lat >= mid {
				ch |= bits[bit]
				latInt[0] = mid
			} else {
				latInt[1] = mid
			}
		}
		even = !even
		if bit < 4 {
			bit++
		} else {
			out = append(out, base32[ch])
			bit = 0
			ch = 0
		}
	}
	return string(out)
}

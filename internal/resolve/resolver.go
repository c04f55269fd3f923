// 包 resolve：点到区域的归属解析
// 背景：每个点的解析相互独立，批量解析可并行执行；其后的计数聚合是按区域键的
// 可交换归并，收集顺序不影响结果。
package resolve

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"region-api/internal/geostore"
)

// InvalidPointError：坐标缺失、不可解析或非有限
// 背景：上游字段常以文本到达，坐标必须先通过有限性校验才能进入解析；
// 此错误按批策略处理（跳过计数或整批中止），不会被悄悄吞掉。
type InvalidPointError struct {
	Lat    float64
	Lon    float64
	Reason string
}

func (e *InvalidPointError) Error() string {
	return fmt.Sprintf("invalid point (%v, %v): %s", e.Lat, e.Lon, e.Reason)
}

// Valid：有限性校验
func Valid(p geostore.Point) error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) {
		return &InvalidPointError{Lat: p.Lat, Lon: p.Lon, Reason: "latitude not finite"}
	}
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return &InvalidPointError{Lat: p.Lat, Lon: p.Lon, Reason: "longitude not finite"}
	}
	return nil
}

// One：解析单点归属
// 背景：按仓库规范位置顺序扫描，包围盒初筛后做精确判定。
// 约束：点落在重叠区域（畸形数据）时，确定性地命中规范顺序中的第一个区域——
// 这是实现定义的平局策略而非任意行为；落在所有边界之外返回 ok=false，
// 这是合法结果而非错误。
func One(s *geostore.Store, p geostore.Point) (string, bool) {
	for i := 0; i < s.Len(); i++ {
		r := s.Region(i)
		for _, poly := range r.Polys {
			if !inBBox(p, poly.BBox) {
				continue
			}
			if pointInPoly(p, poly) {
				return r.ID, true
			}
		}
	}
	return "", false
}

// Policy：批内无效点的处理策略，由调用方决定
type Policy int

const (
	// SkipInvalid：跳过无效点并计入诊断总数（缺省）
	SkipInvalid Policy = iota
	// AbortOnInvalid：遇到首个无效点即中止整批
	AbortOnInvalid
)

// Options：批量解析参数
type Options struct {
	Workers   int
	OnInvalid Policy
}

// Match：一次成功归属
type Match struct {
	Point    geostore.Point
	RegionID string
}

// Outcome：批量解析结果
// 约束：守恒式 len(Matches)+Unmatched == Valid 恒成立；Invalid 单独计数，
// 不进入任何区域聚合域
type Outcome struct {
	Matches   []Match
	Valid     int
	Unmatched int
	Invalid   int
}

// Batch：并行批量解析
// 背景：解析彼此独立，按工作协程分片执行；每片维护局部结果，
// 最后按片序归并，避免共享写与锁竞争。
// 约束：AbortOnInvalid 策略下任何无效点都使整批失败且不产生部分结果。
func Batch(ctx context.Context, s *geostore.Store, pts []geostore.Point, opt Options) (*Outcome, error) {
	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(pts) {
		workers = len(pts)
	}
	if workers == 0 {
		return &Outcome{}, nil
	}

	parts := make([]Outcome, workers)
	chunk := (len(pts) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(pts) {
			end = len(pts)
		}
		part := &parts[w]
		slice := pts[start:end]
		g.Go(func() error {
			for i, p := range slice {
				if i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if err := Valid(p); err != nil {
					if opt.OnInvalid == AbortOnInvalid {
						return err
					}
					part.Invalid++
					continue
				}
				part.Valid++
				if id, ok := One(s, p); ok {
					part.Matches = append(part.Matches, Match{Point: p, RegionID: id})
				} else {
					part.Unmatched++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Outcome{}
	for i := range parts {
		out.Matches = append(out.Matches, parts[i].Matches...)
		out.Valid += parts[i].Valid
		out.Unmatched += parts[i].Unmatched
		out.Invalid += parts[i].Invalid
	}
	return out, nil
}

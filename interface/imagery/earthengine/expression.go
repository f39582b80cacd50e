package earthengine

import (
	"fmt"
	"strconv"

	"github.com/floodsnet/floodprep/classification"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/interface/imagery"
)

// Expression is a serialized computation graph of the remote service
type Expression struct {
	Result string           `json:"result"`
	Values map[string]value `json:"values"`
}

type value map[string]interface{}

// builder appends the nodes of an expression and references them by id
type builder struct {
	values map[string]value
}

func newBuilder() *builder {
	return &builder{values: map[string]value{}}
}

func (b *builder) ref(v value) value {
	id := strconv.Itoa(len(b.values))
	b.values[id] = v
	return value{"valueReference": id}
}

func (b *builder) call(function string, args map[string]value) value {
	return b.ref(value{"functionInvocationValue": map[string]interface{}{
		"functionName": function,
		"arguments":    args,
	}})
}

// lambda defines a function of one argument whose body is built by f
func (b *builder) lambda(arg string, f func(v value) value) value {
	body := f(value{"argumentReference": arg})
	return value{"functionDefinitionValue": map[string]interface{}{
		"argumentNames": []string{arg},
		"body":          body["valueReference"],
	}}
}

func (b *builder) build(result value) Expression {
	return Expression{Result: result["valueReference"].(string), Values: b.values}
}

func constant(v interface{}) value {
	return value{"constantValue": v}
}

func (b *builder) remap(img value, r common.Remap) value {
	return b.call("Image.remap", map[string]value{
		"image":        img,
		"from":         constant(r.From),
		"to":           constant(r.To),
		"defaultValue": constant(r.Default),
	})
}

func (b *builder) add(img1, img2 value) value {
	return b.call("Image.add", map[string]value{"image1": img1, "image2": img2})
}

func (b *builder) number(v float64) value {
	return b.call("Image.constant", map[string]value{"value": constant(v)})
}

func (b *builder) bbox(region common.BBox) value {
	return b.call("GeometryConstructors.BBox", map[string]value{
		"west":  constant(region.West),
		"south": constant(region.South),
		"east":  constant(region.East),
		"north": constant(region.North),
	})
}

func (b *builder) collection(c imagery.Collection) value {
	return b.call("ImageCollection.load", map[string]value{"id": constant(string(c))})
}

func (b *builder) filter(col value, field string, start, end int) value {
	return b.call("Collection.filter", map[string]value{
		"collection": col,
		"filter": b.call("Filter.calendarRange", map[string]value{
			"start": constant(start),
			"end":   constant(end),
			"field": constant(field),
		}),
	})
}

func (b *builder) calendarRange(col value, r classification.CalendarRange) value {
	return b.filter(b.filter(col, "month", r.FromMonth, r.ToMonth), "year", r.FromYear, r.ToYear)
}

func (b *builder) yearOf(c imagery.Collection, year int) value {
	return b.call("Collection.first", map[string]value{"collection": b.filter(b.collection(c), "year", year, year)})
}

func (b *builder) clip(img value, region common.BBox) value {
	return b.call("Image.clipToBoundsAndScale", map[string]value{
		"input":    img,
		"geometry": b.bbox(region),
		"scale":    constant(imagery.Scale),
	})
}

// ImageExpression selects the bands of an image of a collection, clipped to the region
func ImageExpression(img imagery.Image, bands []string, region common.BBox) Expression {
	b := newBuilder()
	i := b.call("Image.load", map[string]value{"id": constant(string(img.Collection) + "/" + img.Index)})
	i = b.call("Image.select", map[string]value{"input": i, "bandSelectors": constant(bands)})
	return b.build(b.clip(i, region))
}

// WaterHistoryExpression composes the water occurrence classes {none, seasonal, permanent} of the window
// (see classification.ClassifyWaterHistory for the rules), clipped to the region
func WaterHistoryExpression(w classification.Window, region common.BBox) (Expression, error) {
	if len(w.Ranges) == 0 {
		return Expression{}, fmt.Errorf("WaterHistoryExpression: empty window")
	}
	b := newBuilder()

	// Permanent layer from the yearly history
	y0 := b.remap(b.yearOf(imagery.CollectionYearlyHistory, w.PermanentYears[0]), classification.PermanentYear)
	y1 := b.remap(b.yearOf(imagery.CollectionYearlyHistory, w.PermanentYears[1]), classification.PermanentYear)
	permanent := b.remap(b.add(y0, y1), classification.PermanentSum)

	// Seasonal layer from the monthly history
	var seasonal value
	if w.Monthly {
		m0 := b.remap(b.call("Collection.first", map[string]value{"collection": b.calendarRange(b.collection(imagery.CollectionMonthlyHistory), w.Ranges[0])}), classification.MonthPresence)
		m1 := b.remap(b.call("Collection.first", map[string]value{"collection": b.calendarRange(b.collection(imagery.CollectionMonthlyHistory), w.Ranges[1])}), classification.MonthPresence)
		seasonal = b.remap(b.add(m0, m1), classification.MonthSum)
	} else {
		var months value
		for i, r := range w.Ranges {
			col := b.calendarRange(b.collection(imagery.CollectionMonthlyHistory), r)
			if i == 0 {
				months = col
			} else {
				months = b.call("ImageCollection.merge", map[string]value{"collection1": months, "collection2": col})
			}
		}
		count := func(r common.Remap) value {
			mapped := b.call("Collection.map", map[string]value{
				"collection": months,
				"baseAlgorithm": b.lambda("_MAPPING_VAR_0_0", func(img value) value {
					return b.remap(img, r)
				}),
			})
			return b.call("reduce.sum", map[string]value{"collection": mapped})
		}
		water, valid := count(classification.MonthWater), count(classification.MonthValid)
		fraction := b.call("Image.divide", map[string]value{"image1": water, "image2": valid})
		fraction = b.call("Image.int", map[string]value{"value": b.call("Image.multiply", map[string]value{"image1": fraction, "image2": b.number(100)})})
		seasonal = b.remap(fraction, classification.SeasonalThreshold)
	}

	classes := b.remap(b.add(seasonal, permanent), classification.FinalClasses)
	classes = b.call("Image.int", map[string]value{"value": classes})
	return b.build(b.clip(classes, region)), nil
}

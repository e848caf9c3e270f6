package tagging

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"golang.org/x/image/draw"
)

// Параметры предобработки: масштаб до resizeSide по короткой стороне
// и центральный квадрат inputSize x inputSize.
const (
	resizeSide = 256
	inputSize  = 224
)

// featureCount — размер вектора признаков: средние R, G, B, насыщенность, яркость.
const featureCount = 5

// Prediction — метка модели и её оценка (сумма оценок по всем меткам равна 1).
type Prediction struct {
	Label string
	Score float64
}

// PaletteModel — классификатор по цветовой сигнатуре изображения.
// Каждая метка задана центроидом в пространстве признаков, оценка метки
// убывает с расстоянием до центроида. Неизменяема после загрузки.
type PaletteModel struct {
	labels []paletteLabel
	sigma  float64
}

type paletteLabel struct {
	Name     string               `json:"name"`
	Centroid [featureCount]float64 `json:"centroid"`
}

// paletteFile — формат файла модели.
type paletteFile struct {
	Version int            `json:"version"`
	Sigma   float64        `json:"sigma"`
	Labels  []paletteLabel `json:"labels"`
}

// LoadPaletteModel читает модель из JSON-файла.
func LoadPaletteModel(path string) (*PaletteModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("открытие файла модели: %w", err)
	}
	defer f.Close()
	return ParsePaletteModel(f)
}

// ParsePaletteModel разбирает и валидирует модель.
func ParsePaletteModel(r io.Reader) (*PaletteModel, error) {
	var file paletteFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("разбор файла модели: %w", err)
	}
	if len(file.Labels) == 0 {
		return nil, errors.New("модель не содержит меток")
	}
	seen := make(map[string]bool, len(file.Labels))
	for i, l := range file.Labels {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return nil, fmt.Errorf("метка %d без имени", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("метка %q задана дважды", name)
		}
		seen[name] = true
		file.Labels[i].Name = name
	}
	if file.Sigma <= 0 {
		file.Sigma = 0.25
	}
	return &PaletteModel{labels: file.Labels, sigma: file.Sigma}, nil
}

// Labels возвращает число меток модели.
func (m *PaletteModel) Labels() int {
	return len(m.labels)
}

// Predict возвращает до k меток, упорядоченных по убыванию оценки.
func (m *PaletteModel) Predict(img image.Image, k int) []Prediction {
	input := preprocess(img)
	if input == nil || k <= 0 {
		return nil
	}
	features := extractFeatures(input)

	preds := make([]Prediction, len(m.labels))
	var total float64
	for i, l := range m.labels {
		var d2 float64
		for j := range featureCount {
			diff := features[j] - l.Centroid[j]
			d2 += diff * diff
		}
		score := math.Exp(-d2 / (2 * m.sigma * m.sigma))
		preds[i] = Prediction{Label: l.Name, Score: score}
		total += score
	}
	if total > 0 {
		for i := range preds {
			preds[i].Score /= total
		}
	}

	sort.SliceStable(preds, func(i, j int) bool {
		if preds[i].Score != preds[j].Score {
			return preds[i].Score > preds[j].Score
		}
		return preds[i].Label < preds[j].Label
	})
	if k < len(preds) {
		preds = preds[:k]
	}
	return preds
}

// preprocess масштабирует изображение и вырезает центральный квадрат inputSize.
// Для пустого изображения возвращает nil.
func preprocess(src image.Image) *image.RGBA {
	b := src.Bounds()
	side := min(b.Dx(), b.Dy())
	if side <= 0 {
		return nil
	}
	crop := max(side*inputSize/resizeSide, 1)
	x0 := b.Min.X + (b.Dx()-crop)/2
	y0 := b.Min.Y + (b.Dy()-crop)/2

	dst := image.NewRGBA(image.Rect(0, 0, inputSize, inputSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+crop, y0+crop), draw.Src, nil)
	return dst
}

// extractFeatures считает средние R, G, B, насыщенность и яркость в [0, 1].
func extractFeatures(img *image.RGBA) [featureCount]float64 {
	var sum [featureCount]float64
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			r, g, bl := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255
			hi := max(r, g, bl)
			lo := min(r, g, bl)
			var sat float64
			if hi > 0 {
				sat = (hi - lo) / hi
			}
			sum[0] += r
			sum[1] += g
			sum[2] += bl
			sum[3] += sat
			sum[4] += hi
		}
	}
	n := float64(b.Dx() * b.Dy())
	for i := range sum {
		sum[i] /= n
	}
	return sum
}

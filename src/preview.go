package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"reflect"
	"unicode/utf8"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"golang.org/x/image/draw"
)

// from http://paulbourke.net/dataformats/asciiart/
var ASCIISTR = "$@B%8&WM#*oahkbdpqwmZO0QLCJUYXzcvunxrjft/\\|()1{}[]?-_+~<>i!lI;:,\"^`'."

// reverse reverses the argument and returns the result
func reverse(s string) string {
	o := make([]rune, utf8.RuneCountInString(s))
	i := len(o)
	for _, c := range s {
		i--
		o[i] = c
	}
	return string(o)
}

// complement2 computes the 2-complement of a number
func complement2(x uint16) int16 {
	return int16(^x) + 1
}

// printImage2ASCII prints the image as ASCII art
func printImage2ASCII(img image.Image, w, h int, PhotometricInterpretation string, PixelPaddingValue int) []byte {
	table := []byte(reverse(ASCIISTR))
	if PhotometricInterpretation == "MONOCHROME1" { // only valid if samples per pixel is 1
		table = []byte(ASCIISTR)
	}
	buf := new(bytes.Buffer)

	g := color.Gray16Model.Convert(img.At(0, 0))
	maxVal := int64(reflect.ValueOf(g).FieldByName("Y").Uint())
	minVal := maxVal

	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			g := color.Gray16Model.Convert(img.At(j, i))
			y := int64(reflect.ValueOf(g).FieldByName("Y").Uint())
			if PixelPaddingValue != 0 && y == int64(PixelPaddingValue) {
				continue
			}
			if y > maxVal {
				maxVal = y
			}
			if y < minVal {
				minVal = y
			}
		}
	}
	// use a histogram to scale at 2%...98% per image
	var histogram [1024]int64
	bins := len(histogram)
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			g := color.Gray16Model.Convert(img.At(j, i))
			y := int64(reflect.ValueOf(g).FieldByName("Y").Uint())
			if PixelPaddingValue != 0 && y == int64(PixelPaddingValue) {
				continue
			}
			idx := int(math.Round((float64(y) - float64(minVal)) / float64(maxVal-minVal) * float64(bins-1)))
			idx = int(math.Min(float64(bins)-1, math.Max(0, float64(idx))))
			histogram[idx] += 1
		}
	}
	sum := histogram[0]
	for i := 1; i < bins; i++ {
		sum += histogram[i]
	}
	var min2 int64 = minVal
	s := histogram[0]
	for i := 1; i < bins; i++ {
		if float32(s) >= (float32(sum) * 2.0 / 100.0) { // sum / 100 = ? / 2
			min2 = minVal + int64(float32(i)/float32(bins)*float32(maxVal-minVal))
			break
		}
		s += histogram[i]
	}
	var max99 int64 = maxVal
	s = histogram[0]
	for i := 1; i < bins; i++ {
		if float32(s) >= (float32(sum) * 98.0 / 100.0) {
			max99 = minVal + int64(float32(i)/float32(bins)*float32(maxVal-minVal))
			break
		}
		s += histogram[i]
	}

	// some pixel are very dark and we need more contrast
	denom := max99 - min2
	if denom == 0 {
		denom = 1
	}
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			g := color.Gray16Model.Convert(img.At(j, i))
			y := int64(reflect.ValueOf(g).FieldByName("Y").Uint())
			if PixelPaddingValue != 0 && y == int64(PixelPaddingValue) {
				_ = buf.WriteByte(' ')
				continue
			}
			pos := int((float32(y) - float32(min2)) * float32(len(table)-1) / float32(denom))
			pos = int(math.Min(float64(len(table)-1), math.Max(0, float64(pos))))
			_ = buf.WriteByte(table[pos])
		}
		_ = buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// shiftSigned reinterprets two's complement pixel values and moves them
// into the positive range so the Gray16 windowing keeps working.
func shiftSigned(img image.Image) image.Image {
	bounds := img.Bounds()
	shifted := image.NewGray16(bounds)
	for i := bounds.Min.Y; i < bounds.Max.Y; i++ {
		for j := bounds.Min.X; j < bounds.Max.X; j++ {
			g := color.Gray16Model.Convert(img.At(j, i)).(color.Gray16)
			shifted.SetGray16(j, i, color.Gray16{Y: uint16(32768 + int(complement2(g.Y)))})
		}
	}
	return shifted
}

// renderDataset draws the first frame of the dataset as ASCII art into
// the writer. Files without pixel data render nothing.
func renderDataset(dataset dicom.Dataset, out io.Writer) {
	pixelDataElement, err := dataset.FindElementByTag(tag.PixelData)
	if err != nil {
		return
	}
	var PixelRepresentation int = 0
	PixelRepresentationVal, err := dataset.FindElementByTag(tag.PixelRepresentation)
	if err == nil {
		PixelRepresentation = dicom.MustGetInts(PixelRepresentationVal.Value)[0]
	}
	var PhotometricInterpretation string = "MONOCHROME2"
	PhotometricInterpretationVal, err := dataset.FindElementByTag(tag.PhotometricInterpretation)
	if err == nil {
		PhotometricInterpretation = dicom.MustGetStrings(PhotometricInterpretationVal.Value)[0]
	}
	// This value seems to be defined in the original data format (before complement-2)
	var PixelPaddingValue int = 0
	PixelPaddingValueVal, err := dataset.FindElementByTag(tag.PixelPaddingValue)
	if err == nil {
		PixelPaddingValue = dicom.MustGetInts(PixelPaddingValueVal.Value)[0]
	}

	pixelDataInfo := dicom.MustGetPixelDataInfo(pixelDataElement.Value)
	if len(pixelDataInfo.Frames) == 0 {
		return
	}
	fr := pixelDataInfo.Frames[0]

	// The Go image.Image for this frame. The frame stores the raw pixel
	// bits as uint16 so signed data needs the shift below.
	img, err := fr.GetImage()
	if err != nil {
		return
	}
	if PixelRepresentation == 1 {
		if PixelPaddingValue != 0 {
			// if we have such a value we cannot assume it will actually work,
			// GE is an example where they used other values
			g := color.Gray16Model.Convert(img.At(img.Bounds().Min.X, img.Bounds().Min.Y)).(color.Gray16)
			PixelPaddingValue = int(32768) + int(complement2(g.Y))
		} else {
			PixelPaddingValue += int(32768)
		}
		img = shiftSigned(img)
	}

	origbounds := img.Bounds()
	// scale to the character cell aspect ratio of a terminal (80x30)
	newImage := image.NewGray16(image.Rect(0, 0, 196/2, int(math.Round(196.0/2.0/(80.0/30.0)))))
	draw.ApproxBiLinear.Scale(newImage, newImage.Bounds(), img, origbounds, draw.Over, nil)

	bounds := newImage.Bounds()
	width, height := bounds.Max.X, bounds.Max.Y
	p := printImage2ASCII(newImage, width, height, PhotometricInterpretation, PixelPaddingValue)
	fmt.Fprintf(out, "%s", string(p))
}

// showFirstImage prints one slice of a scan directory on the terminal,
// used by upload --preview.
func showFirstImage(path string) {
	dataset, err := dicom.ParseFile(path, nil)
	if err != nil {
		return
	}
	renderDataset(dataset, os.Stdout)
	fmt.Printf("[%s]\n", path)
}

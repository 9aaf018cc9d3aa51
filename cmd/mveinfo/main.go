// Command mveinfo inspects an Interplay MVE file and prints its stream
// parameters and a packet summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/retromux/retromux/media"
	"github.com/retromux/retromux/mve"
)

func main() {
	verbose := flag.Bool("v", false, "print every packet")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: mveinfo [-v] <file.mve>\n")
		os.Exit(2)
	}
	path := flag.Arg(0)

	if err := run(path, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "mveinfo: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, verbose bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	probe := make([]byte, 64)
	n, _ := io.ReadFull(f, probe)
	if !mve.Probe(probe[:n]) {
		return fmt.Errorf("%s: not an Interplay MVE file", path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	d, err := mve.NewDemuxer(context.Background(), f)
	if err != nil {
		return err
	}

	video := d.VideoDescriptor()
	fmt.Printf("%s\n", path)
	fmt.Printf("  video: %dx%d, %d bpp\n", video.Width, video.Height, video.BitsPerPixel)
	if audio, ok := d.AudioDescriptor(); ok {
		fmt.Printf("  audio: %s, %d Hz, %d ch, %d bit, %d b/s\n",
			audio.Codec, audio.SampleRate, audio.Channels, audio.Bits, audio.BitRate())
	} else {
		fmt.Printf("  audio: none\n")
	}

	var videoPackets, audioPackets int
	var videoBytes, audioBytes, paletteLoads int64
	var lastVideoPTS, lastAudioPTS int64
	for {
		pkt, err := d.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch pkt.Stream {
		case media.StreamVideo:
			videoPackets++
			videoBytes += int64(len(pkt.Data))
			lastVideoPTS = pkt.PTS
			if pkt.Palette != nil {
				paletteLoads++
			}
		case media.StreamAudio:
			audioPackets++
			audioBytes += int64(len(pkt.Data))
			lastAudioPTS = pkt.PTS
		}
		if verbose {
			fmt.Printf("  %-5s pts=%-12d size=%d\n", pkt.Stream, pkt.PTS, len(pkt.Data))
		}
	}

	fmt.Printf("  %d video packets, %d bytes, %d palette loads, duration %.2fs\n",
		videoPackets, videoBytes, paletteLoads, float64(lastVideoPTS)/1e6)
	if audioPackets > 0 {
		fmt.Printf("  %d audio packets, %d bytes, last pts %d samples\n",
			audioPackets, audioBytes, lastAudioPTS)
	}
	return nil
}

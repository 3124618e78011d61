package exporter

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/material"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/scene"
	"github.com/achilleasa/lightmass/stats"
	"github.com/achilleasa/lightmass/types"
)

type MaterialExportState uint8

const (
	BuildMaterials MaterialExportState = iota
	ShaderCompilation
	ExportMaterials
	CleanupMaterialExport
	Complete
)

func (s MaterialExportState) String() string {
	switch s {
	case BuildMaterials:
		return "build materials"
	case ShaderCompilation:
		return "shader compilation"
	case ExportMaterials:
		return "export materials"
	case CleanupMaterialExport:
		return "cleanup material export"
	}
	return "complete"
}

type materialEntry struct {
	hash     types.SHAHash
	material *material.Material
	unwrap   *scene.Mesh

	// Set when a channel with this hash was already present in the store.
	reused bool
}

type materialExport struct {
	state    MaterialExportState
	index    int
	compiler *material.Compiler
	elapsed  time.Duration
}

// The mesh a material must be rasterized against or nil. Only landscapes
// with a hole mask unwrap their materials.
func unwrapMesh(mesh *scene.Mesh) *scene.Mesh {
	if mesh.Kind == scene.LandscapeKind && mesh.Landscape.HoleMask != nil {
		return mesh
	}
	return nil
}

func unwrapGuid(mesh *scene.Mesh) types.GUID {
	if mesh == nil {
		return types.GUID{}
	}
	return mesh.Guid
}

// Register a material for export. Materials whose hash matches an already
// registered material are exported once. Adding the same material object
// with a different unwrap context returns ErrMaterialConflict.
func (e *Exporter) AddMaterial(m *material.Material, unwrap *scene.Mesh) error {
	hash := material.Hash(m, unwrapGuid(unwrap))
	if prev, exists := e.materialsByOwner[m]; exists {
		if prev != hash {
			return fmt.Errorf("%w: %s", ErrMaterialConflict, m.Name)
		}
		return nil
	}
	e.materialsByOwner[m] = hash

	if _, exists := e.materialsByHash[hash]; exists {
		return nil
	}
	entry := &materialEntry{hash: hash, material: m, unwrap: unwrap}
	e.materialsByHash[hash] = entry
	e.materials = append(e.materials, entry)
	return nil
}

// Get the hashes of the materials that will be exported.
func (e *Exporter) MaterialHashes() []types.SHAHash {
	out := make([]types.SHAHash, len(e.materials))
	for i, entry := range e.materials {
		out[i] = entry.hash
	}
	return out
}

func (e *Exporter) materialHash(mesh *scene.Mesh, el *scene.MaterialElement) types.SHAHash {
	if hash, exists := e.materialsByOwner[el.Material]; exists {
		return hash
	}
	return material.Hash(el.Material, unwrapGuid(unwrapMesh(mesh)))
}

// Get the current material export state.
func (e *Exporter) MaterialExportState() MaterialExportState {
	return e.materialExport.state
}

// Advance the material export. Each call performs work until the configured
// time budget elapses and returns true once every material channel has been
// written. Calling it after completion is a no-op.
func (e *Exporter) WriteToMaterialChannel() (bool, error) {
	ex := &e.materialExport
	if ex.state == Complete {
		return true, nil
	}

	start := time.Now()
	budget := e.sess.Config.Export.MaterialBudget()
	defer func() {
		ex.elapsed += time.Since(start)
	}()
	outOfTime := func() bool {
		return budget > 0 && time.Since(start) >= budget
	}

	for ex.state != Complete {
		if e.sess.Canceled() {
			return false, ErrCanceled
		}

		switch ex.state {
		case BuildMaterials:
			if ex.compiler == nil {
				ex.compiler = material.NewCompiler(context.Background(), 0)
			}
			for ; ex.index < len(e.materials); ex.index++ {
				if outOfTime() {
					return false, nil
				}
				e.submitMaterial(ex.compiler, e.materials[ex.index])
			}
			ex.index = 0
			ex.state = ShaderCompilation
		case ShaderCompilation:
			if err := ex.compiler.Wait(); err != nil {
				return false, fmt.Errorf("exporter: material compilation failed: %w", err)
			}
			ex.state = ExportMaterials
		case ExportMaterials:
			for ; ex.index < len(e.materials); ex.index++ {
				if outOfTime() {
					return false, nil
				}
				e.exportMaterial(ex.compiler, e.materials[ex.index])
				e.sess.ReportProgress("export materials", float32(ex.index+1)/float32(len(e.materials)))
			}
			ex.index = 0
			ex.state = CleanupMaterialExport
		case CleanupMaterialExport:
			ex.compiler = nil
			ex.state = Complete
			e.sess.Stats.MaterialExportTime = ex.elapsed + time.Since(start)
			e.logger.Noticef(
				"exported %d materials in %d ms",
				len(e.materials), e.sess.Stats.MaterialExportTime.Nanoseconds()/1e6,
			)
		}
	}
	return true, nil
}

func (e *Exporter) submitMaterial(compiler *material.Compiler, entry *materialEntry) {
	if e.store.Exists(protocol.MaterialChannel(entry.hash)) {
		entry.reused = true
		return
	}

	cfg := e.sess.Config.Export
	sizes := [material.NumProperties]int{
		material.Diffuse:      cfg.DiffuseSampleSize,
		material.Emissive:     cfg.EmissiveSampleSize,
		material.Transmission: cfg.TransmissionSampleSize,
		material.Normal:       cfg.NormalSampleSize,
	}

	compiler.Submit(entry.hash, entry.material, sizes, entry.unwrapMask())
}

func (entry *materialEntry) unwrapMask() image.Image {
	if entry.unwrap == nil {
		return nil
	}
	return entry.unwrap.Landscape.HoleMask
}

// Write a compiled material. Failures to open the channel are reported as
// warnings and skip the material.
func (e *Exporter) exportMaterial(compiler *material.Compiler, entry *materialEntry) {
	if entry.reused {
		return
	}
	samples := compiler.Samples(entry.hash)
	if samples == nil {
		return
	}
	defer compiler.Release(entry.hash)

	name := protocol.MaterialChannel(entry.hash)
	ch, err := e.store.Open(name, channel.Write|InputChannelFlags(e.sess.Config))
	if err != nil {
		e.sess.Messages.Addf(stats.Warning, "could not open material channel %s for %s: %v", name, entry.material.Name, err)
		return
	}
	if err = protocol.WriteMaterial(ch, material.ToFile(entry.material, entry.hash, samples)); err != nil {
		ch.Abort()
		e.sess.Messages.Addf(stats.Warning, "could not write material channel %s for %s: %v", name, entry.material.Name, err)
		return
	}
	if err = ch.Close(); err != nil {
		e.sess.Messages.Addf(stats.Warning, "could not publish material channel %s: %v", name, err)
	}
}

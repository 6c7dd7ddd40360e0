package faces

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mediaengine/engine/internal/store"
)

// ClusterUnassigned runs greedy centroid-based agglomeration over every
// unassigned face, up to limit candidates, grouping faces whose
// similarity to the cluster's running centroid clears
// ClusterThreshold. It returns the number of clusters formed; clusters
// are a UI grouping aid only, not a commitment to a person.
func (l *Learner) ClusterUnassigned(ctx context.Context, limit int) (int, error) {
	faces, err := l.st.ListUnassignedFaces(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unassigned faces: %w", err)
	}

	type cluster struct {
		id       string
		centroid []float32
		weight   float64
		members  []string
	}
	var clusters []*cluster

	for _, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		var best *cluster
		bestSim := 0.0
		for _, c := range clusters {
			sim := cosineSimilarity(f.Embedding, c.centroid)
			if sim > bestSim {
				bestSim = sim
				best = c
			}
		}
		if best != nil && bestSim >= ClusterThreshold {
			best.members = append(best.members, f.ID)
			mergeInto(best.centroid, best.weight, f.Embedding, 1)
			best.weight++
			continue
		}
		clusters = append(clusters, &cluster{
			id:       uuid.NewString(),
			centroid: append([]float32(nil), f.Embedding...),
			weight:   1,
			members:  []string{f.ID},
		})
	}

	formed := 0
	for _, c := range clusters {
		if len(c.members) < 2 {
			continue
		}
		if err := l.st.SetFaceCluster(ctx, c.members, c.id); err != nil {
			return formed, fmt.Errorf("set face cluster: %w", err)
		}
		formed++
	}
	return formed, nil
}

// mergeInto updates centroid in place to the running weighted average
// after adding embedding with weight addWeight, given centroid's
// current accumulated weight.
func mergeInto(centroid []float32, weight float64, embedding []float32, addWeight float64) {
	total := weight + addWeight
	if total == 0 {
		return
	}
	for i := range centroid {
		if i >= len(embedding) {
			break
		}
		centroid[i] = float32((float64(centroid[i])*weight + float64(embedding[i])*addWeight) / total)
	}
}

// PromoteCluster turns a transient cluster into a named person,
// assigning every member face to it as manual corrections.
func (l *Learner) PromoteCluster(ctx context.Context, clusterID, name string, mode store.RecognitionMode) (*store.Person, error) {
	members, err := l.st.ListFacesByCluster(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("list faces by cluster: %w", err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("cluster %s has no members", clusterID)
	}

	person, err := l.st.CreatePerson(ctx, name, mode)
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	for _, f := range members {
		if err := l.st.AssignFace(ctx, f.ID, person.ID, store.AssignManual, 1.0); err != nil {
			return nil, fmt.Errorf("assign face %s: %w", f.ID, err)
		}
	}
	if err := l.st.RefreshPersonStats(ctx, person.ID); err != nil {
		return nil, fmt.Errorf("refresh person stats: %w", err)
	}
	if err := l.RecomputeThumbnail(ctx, person.ID); err != nil {
		l.logger().Warn("recompute thumbnail after cluster promotion failed", "person_id", person.ID, "error", err.Error())
	}
	return person, nil
}

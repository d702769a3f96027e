package project

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanreg/scanreg/mat"
	"github.com/scanreg/scanreg/registration/icp"
	"github.com/scanreg/scanreg/registration/posegraph"
)

func newSession(t *testing.T) *Project {
	t.Helper()
	p := New("hall")
	require.NoError(t, p.AddScan("scan0", "scan0.pcd"))
	require.NoError(t, p.AddScan("scan1", "scan1.pcd"))
	require.NoError(t, p.AddScan("scan2", "scan2.pcd"))
	return p
}

func TestAddScanRejectsDuplicateID(t *testing.T) {
	p := newSession(t)
	assert.Error(t, p.AddScan("scan1", "other.pcd"))
}

func TestSetPoseAndPose(t *testing.T) {
	p := newSession(t)
	pose := mat.Translate(1, 2, 3)
	require.NoError(t, p.SetPose("scan1", pose))

	got, err := p.Pose("scan1")
	require.NoError(t, err)
	assert.Equal(t, pose, got)

	_, err = p.Pose("nope")
	assert.Error(t, err)
}

func TestAcceptedResults(t *testing.T) {
	p := newSession(t)
	r := icp.Result{
		Transform:  mat.Translate(1, 0, 0),
		RMSError:   0.01,
		Iterations: 7,
		Converged:  true,
		Status:     icp.StatusConverged,
	}
	i0, err := p.AddResult("scan0", "scan1", icp.PointToPoint, r)
	require.NoError(t, err)
	i1, err := p.AddResult("scan1", "scan2", icp.PointToPlane, r)
	require.NoError(t, err)

	_, err = p.AddResult("scan0", "ghost", icp.PointToPoint, r)
	assert.Error(t, err)

	assert.Empty(t, p.AcceptedResults(), "new results start unaccepted")

	require.NoError(t, p.Accept(i0))
	require.NoError(t, p.Accept(i1))
	assert.Len(t, p.AcceptedResults(), 2)

	require.NoError(t, p.Discard(i1))
	accepted := p.AcceptedResults()
	require.Len(t, accepted, 1)
	assert.Equal(t, "scan0", accepted[0].Source)
	assert.Equal(t, "point_to_point", accepted[0].Variant)

	assert.Error(t, p.Accept(99))
}

func TestBuildPoseGraph(t *testing.T) {
	p := newSession(t)
	require.NoError(t, p.SetPose("scan1", mat.Translate(1, 0, 0)))

	r := icp.Result{Transform: mat.Translate(-1, 0, 0), RMSError: 0.02}
	i0, err := p.AddResult("scan0", "scan1", icp.PointToPoint, r)
	require.NoError(t, err)
	require.NoError(t, p.Accept(i0))

	// a recorded but unaccepted result must not become an edge
	_, err = p.AddResult("scan1", "scan2", icp.PointToPoint, r)
	require.NoError(t, err)

	g := p.BuildPoseGraph()
	require.Len(t, g.Nodes, 3, "every scan becomes a node")
	require.Len(t, g.Edges, 1, "only accepted results become edges")

	assert.Equal(t, "scan1", g.Nodes[1].ScanID)
	assert.Equal(t, mat.Translate(1, 0, 0), g.Nodes[1].Pose)
	assert.Equal(t, r.Transform, g.Edges[0].Measured)
	assert.InDelta(t, 1/0.02, g.Edges[0].Weight, 1e-9)
}

func TestApplyOptimized(t *testing.T) {
	p := newSession(t)

	g := &posegraph.Graph{}
	g.AddNode("scan0", mat.Translate(0, 0, 1))
	g.AddNode("scan2", mat.Translate(0, 0, 2))
	g.AddNode("ghost", mat.Translate(9, 9, 9))
	p.ApplyOptimized(g)

	pose0, err := p.Pose("scan0")
	require.NoError(t, err)
	assert.Equal(t, mat.Translate(0, 0, 1), pose0)

	pose1, err := p.Pose("scan1")
	require.NoError(t, err)
	assert.Equal(t, mat.Ident(), pose1, "scans absent from the graph keep their pose")

	pose2, err := p.Pose("scan2")
	require.NoError(t, err)
	assert.Equal(t, mat.Translate(0, 0, 2), pose2)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	p := newSession(t)
	require.NoError(t, p.SetPose("scan1", mat.Translate(1, 2, 3)))
	i0, err := p.AddResult("scan0", "scan1", icp.PointToPlane, icp.Result{
		Transform:  mat.Translate(-1, -2, -3),
		RMSError:   0.005,
		Iterations: 12,
		Converged:  true,
		Status:     icp.StatusConverged,
	})
	require.NoError(t, err)
	require.NoError(t, p.Accept(i0))

	var buf bytes.Buffer
	require.NoError(t, p.Save(&buf))

	q, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, p.Name, q.Name)
	require.Len(t, q.Scans, len(p.Scans))
	for i := range p.Scans {
		assert.Equal(t, p.Scans[i], q.Scans[i])
	}
	require.Len(t, q.Results, 1)
	assert.Equal(t, p.Results[0], q.Results[0])
}

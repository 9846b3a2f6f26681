package binder

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/cirrus/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

var podsResource = schema.GroupResource{Resource: "pods"}

func bindReactor(result error, captured *[]*corev1.Binding) k8stesting.ReactionFunc {
	return func(action k8stesting.Action) (bool, runtime.Object, error) {
		if action.GetSubresource() != "binding" {
			return false, nil, nil
		}
		b := action.(k8stesting.CreateAction).GetObject().(*corev1.Binding)
		*captured = append(*captured, b)
		return true, nil, result
	}
}

func TestBind(t *testing.T) {
	pod := &types.Pod{Name: "web-0", Namespace: "default"}

	tests := []struct {
		name    string
		result  error
		wantErr error
	}{
		{name: "success"},
		{
			name:    "conflict",
			result:  apierrors.NewConflict(podsResource, "web-0", errors.New("pod already assigned")),
			wantErr: ErrAlreadyBound,
		},
		{
			name:    "already exists",
			result:  apierrors.NewAlreadyExists(podsResource, "web-0"),
			wantErr: ErrAlreadyBound,
		},
		{
			name:    "not found",
			result:  apierrors.NewNotFound(podsResource, "web-0"),
			wantErr: ErrPodNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fake.NewSimpleClientset()
			var captured []*corev1.Binding
			client.PrependReactor("create", "pods", bindReactor(tt.result, &captured))

			err := New(client, zerolog.Nop()).Bind(context.Background(), pod, "node-3")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			require.Len(t, captured, 1)
			assert.Equal(t, "web-0", captured[0].Name)
			assert.Equal(t, "default", captured[0].Namespace)
			assert.Equal(t, "Node", captured[0].Target.Kind)
			assert.Equal(t, "node-3", captured[0].Target.Name)
		})
	}
}

func TestBindTransportError(t *testing.T) {
	client := fake.NewSimpleClientset()
	var captured []*corev1.Binding
	client.PrependReactor("create", "pods", bindReactor(errors.New("connection reset"), &captured))

	err := New(client, zerolog.Nop()).Bind(context.Background(), &types.Pod{Name: "a", Namespace: "default"}, "node-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyBound)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestBindRequiresNodeName(t *testing.T) {
	client := fake.NewSimpleClientset()
	err := New(client, zerolog.Nop()).Bind(context.Background(), &types.Pod{Name: "a", Namespace: "default"}, "")
	require.Error(t, err)
	assert.Empty(t, client.Actions())
}

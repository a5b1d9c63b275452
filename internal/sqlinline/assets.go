// Package sqlinline centralizes every SQL statement the service executes.
// Each constant starts with a --sql <uuid> marker line that the runner strips
// and logs, so statements seen in production logs trace back here.
package sqlinline

const QInsertGeneratedAsset = `--sql 7c1f4a0e-9b2d-4e9f-8a31-55c0d7b6a914
insert into generated_assets
  (id, asset_type, name, prompt, workflow, status, batch_id, seed, created_at, updated_at)
values
  ($1, $2, $3, $4, $5, $6, nullif($7, ''), $8, now(), now())
`

const QMarkAssetProcessing = `--sql 1a6f3d85-0c2e-47b9-9e51-d84b7a29c0e6
update generated_assets
set status = 'PROCESSING',
    updated_at = now()
where id = $1
  and status = 'PENDING'
`

// Terminal statuses are guarded: a COMPLETED or FAILED row is never
// rewritten, so replayed settlements are no-ops.
const QMarkAssetCompleted = `--sql 3e8b2c71-4d5a-4f60-b1e2-09a8c3f7d520
update generated_assets
set status = 'COMPLETED',
    file_path = $2,
    thumbnail_path = $3,
    file_size = $4,
    width = $5,
    height = $6,
    seed = $7,
    comfy_job_id = $8,
    workflow = $9,
    error_detail = '',
    updated_at = now()
where id = $1
  and status in ('PENDING', 'PROCESSING')
`

const QMarkAssetFailed = `--sql b49d6e12-7f03-48c5-9d77-21e4a8b0c6f3
update generated_assets
set status = 'FAILED',
    error_detail = $2,
    updated_at = now()
where id = $1
  and status in ('PENDING', 'PROCESSING')
`

const QSelectAssetByID = `--sql f02a913c-6b84-4d1f-a5c9-e73b08d2f461
select id, asset_type, name, prompt, workflow, status, coalesce(batch_id, ''),
       coalesce(file_path, ''), coalesce(thumbnail_path, ''), file_size,
       width, height, seed, coalesce(comfy_job_id, ''), coalesce(error_detail, ''),
       created_at, updated_at
from generated_assets
where id = $1
`

const QListAssets = `--sql 5d7e0b28-13af-4c96-8e04-9f6a2c41d7b5
select id, asset_type, name, prompt, workflow, status, coalesce(batch_id, ''),
       coalesce(file_path, ''), coalesce(thumbnail_path, ''), file_size,
       width, height, seed, coalesce(comfy_job_id, ''), coalesce(error_detail, ''),
       created_at, updated_at
from generated_assets
where ($1 = '' or asset_type = $1)
  and ($2 = '' or status = $2)
  and ($3 = '' or batch_id = $3)
order by created_at desc
limit $4 offset $5
`

// Records stuck in flight past the stale window belong to a run that died
// without settling; they are failed so clients stop polling forever.
const QReclaimStaleAssets = `--sql a81c5f94-2e6d-4b07-bd38-60f9e7a3c1d2
update generated_assets
set status = 'FAILED',
    error_detail = $2,
    updated_at = now()
where status in ('PENDING', 'PROCESSING')
  and updated_at < now() - $1::interval
`

package sqlinline

const QInsertBatchJob = `--sql 8af00b35-6a33-4cd8-8a1a-e68a9c3b78d3
insert into batch_jobs (
    id, subject_id, kind, status, config,
    total_chunks, processed_chunks, failed_chunks,
    created_at, updated_at
)
values ($1::text, $2::text, $3::text, $4::text, $5::jsonb, $6::int, 0, 0, $7::timestamptz, $7::timestamptz);
`

const QInsertBatchJobItem = `--sql 7d03e230-a016-4ef7-b00e-79a8e9697401
insert into batch_job_items (job_id, position, chunk_id, status)
values ($1::text, $2::int, $3::text, 'pending');
`

const QSelectBatchJob = `--sql 4d4d2533-eb36-42a7-a851-43eb43281fd0
select id, subject_id, kind, status, config,
       total_chunks, processed_chunks, failed_chunks,
       error, run_after, claimed_by, created_at, updated_at, completed_at
from batch_jobs
where id = $1::text;
`

const QSelectActiveBatchJobForSubject = `--sql 136d2c67-071a-401e-9e3a-5d10ad0cbc9e
select id, subject_id, kind, status, config,
       total_chunks, processed_chunks, failed_chunks,
       error, run_after, claimed_by, created_at, updated_at, completed_at
from batch_jobs
where subject_id = $1::text
  and kind = $2::text
  and status in ('pending', 'processing')
order by created_at desc
limit 1;
`

const QSelectLatestBatchJobForSubject = `--sql 7158aae0-4487-40da-b295-2c694a3d30b7
select id, subject_id, kind, status, config,
       total_chunks, processed_chunks, failed_chunks,
       error, run_after, claimed_by, created_at, updated_at, completed_at
from batch_jobs
where subject_id = $1::text
order by created_at desc
limit 1;
`

const QListBatchJobsForSubject = `--sql d9120dce-6de6-401a-8e06-b3835bd8e94e
select id, subject_id, kind, status, config,
       total_chunks, processed_chunks, failed_chunks,
       error, run_after, claimed_by, created_at, updated_at, completed_at
from batch_jobs
where subject_id = $1::text
order by created_at desc;
`

const QSelectBatchJobItems = `--sql 08eddc63-c19e-4c00-a159-5975c30b23de
select job_id, position, chunk_id, status, error, attempts,
       next_attempt_at, processed_at,
       image_url, secondary_image_url, scene_description, symbol_description
from batch_job_items
where job_id = $1::text
order by position asc;
`

const QClaimNextBatchJob = `--sql 0779bb12-5cfc-4c45-a46c-1e9458b6da8c
with next_job as (
    select id
    from batch_jobs
    where status = 'pending'
      and (run_after is null or run_after <= now())
    order by created_at asc
    for update skip locked
    limit 1
)
update batch_jobs
set status = 'processing', claimed_by = $1::text, updated_at = now()
where id in (select id from next_job)
returning id;
`

const QSelectBatchJobStatus = `--sql 61eee2be-e9bd-4827-bf85-61958c0bf82a
select status
from batch_jobs
where id = $1::text;
`

const QUpdateBatchJobItem = `--sql 1f82f565-aa62-4312-ae5e-3a19eb760a40
update batch_job_items
set status = $3::text,
    error = $4::text,
    attempts = $5::int,
    next_attempt_at = $6::timestamptz,
    processed_at = $7::timestamptz,
    image_url = $8::text,
    secondary_image_url = $9::text,
    scene_description = $10::text,
    symbol_description = $11::text
where job_id = $1::text
  and position = $2::int;
`

const QRefreshBatchJobProgress = `--sql 9f5c513a-3b21-4f3f-816a-8a15308730a0
update batch_jobs j
set processed_chunks = (
        select count(*) from batch_job_items i
        where i.job_id = j.id and i.status = 'completed'
    ),
    failed_chunks = (
        select count(*) from batch_job_items i
        where i.job_id = j.id and i.status = 'failed'
    ),
    updated_at = now()
where j.id = $1::text
returning total_chunks, processed_chunks, failed_chunks;
`

const QTransitionBatchJob = `--sql 221ba279-14fe-48a3-a890-59bf360f5071
update batch_jobs
set status = $2::text,
    error = $3::text,
    run_after = $4::timestamptz,
    completed_at = $5::timestamptz,
    claimed_by = case when $2::text = 'processing' then claimed_by else '' end,
    updated_at = now()
where id = $1::text
  and status = any($6::text[]);
`

const QRequeueBatchJob = `--sql d6b24d98-ed37-4df8-8bc4-87e0161ceec0
update batch_jobs
set status = 'pending', claimed_by = '', updated_at = now()
where id = $1::text
  and status = 'processing';
`

const QRequeueBatchJobItems = `--sql 1ad88810-8a03-4cc8-81ca-b265d00ec249
update batch_job_items
set status = 'pending'
where job_id = $1::text
  and status = 'processing';
`

const QReconcileBatchJobs = `--sql 89c53504-3f25-49ec-b25b-6b38510c9441
update batch_jobs
set status = 'pending', claimed_by = '', updated_at = now()
where status = 'processing';
`

const QReconcileBatchJobItems = `--sql c1d98ba9-4e31-4d34-9d79-718138e7613f
update batch_job_items
set status = 'pending'
where status = 'processing';
`

const QDeleteBatchJobsForSubject = `--sql 279bfe38-2aa4-4a3f-ab6c-bb34fd994a63
delete from batch_jobs
where subject_id = $1::text;
`
